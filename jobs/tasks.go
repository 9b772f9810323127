package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// RecorderPort abstracts audit persistence for the worker.
type RecorderPort interface {
	Record(ctx context.Context, event audit.Event) error
}

// NewAuditRecordHandler returns the handler for audit.TaskTypeRecord tasks.
// Malformed payloads are dropped; persistence errors are retried by asynq.
func NewAuditRecordHandler(recorder RecorderPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event audit.Event
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			logger.Warn("audit task: bad payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		return recorder.Record(ctx, event)
	}
}

// CleanerPort abstracts the idempotency store for the cleanup task.
type CleanerPort interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupTask constructs the cron task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewIdempotencyCleanupHandler returns the handler pruning keys older than
// the retention window.
func NewIdempotencyCleanupHandler(cleaner CleanerPort, retention time.Duration) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		return cleaner.Cleanup(ctx, retention)
	}
}
