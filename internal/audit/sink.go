package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeRecord is the asynq task type carrying one audit event.
const TaskTypeRecord = "audit:record"

// Enqueuer is the slice of asynq.Client the sink needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink hands events to the background worker through asynq. Failures are
// logged and swallowed: inventory correctness is never coupled to the
// availability of the audit subsystem.
type QueueSink struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(enqueuer Enqueuer, logger *slog.Logger) *QueueSink {
	return &QueueSink{enqueuer: enqueuer, logger: logger}
}

// NewRecordTask builds the asynq task for an event.
func NewRecordTask(event Event) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, payload), nil
}

// Emit enqueues the event, best-effort.
func (s *QueueSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.enqueuer == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	task, err := NewRecordTask(event)
	if err != nil {
		s.logger.Warn("audit: marshal event", slog.Any("error", err))
		return
	}
	if _, err := s.enqueuer.EnqueueContext(ctx, task); err != nil {
		s.logger.Warn("audit: enqueue event",
			slog.String("action", event.Action),
			slog.String("entity_id", event.EntityID),
			slog.Any("error", err))
	}
}

// LogSink writes events to the operational log only. Used when no queue is
// configured, e.g. in development without Redis.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event.
func (s *LogSink) Emit(_ context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Info("audit event",
		slog.String("action", event.Action),
		slog.String("entity", event.Entity),
		slog.String("entity_id", event.EntityID),
		slog.Int64("business_id", event.BusinessID),
		slog.Int64("actor_id", event.ActorID))
}
