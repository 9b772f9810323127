package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func TestQueueSinkEnqueuesEvent(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	sink := NewQueueSink(enqueuer, slog.Default())

	sink.Emit(context.Background(), Event{
		Action:     "STOCK_SALE",
		Entity:     "Product",
		EntityID:   "42",
		BusinessID: 7,
		ActorID:    3,
		OldValue:   map[string]any{"quantity": 10.0},
		NewValue:   map[string]any{"quantity": 7.0},
	})

	require.Len(t, enqueuer.tasks, 1)
	task := enqueuer.tasks[0]
	require.Equal(t, TaskTypeRecord, task.Type())

	var decoded Event
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, "STOCK_SALE", decoded.Action)
	require.Equal(t, "Product", decoded.Entity)
	require.Equal(t, "42", decoded.EntityID)
	require.Equal(t, int64(7), decoded.BusinessID)
	require.Equal(t, map[string]any{"quantity": 7.0}, decoded.NewValue)
	require.False(t, decoded.OccurredAt.IsZero(), "missing timestamp is filled in on emit")
}

func TestQueueSinkSwallowsEnqueueFailure(t *testing.T) {
	enqueuer := &fakeEnqueuer{err: errors.New("redis down")}
	sink := NewQueueSink(enqueuer, slog.Default())

	require.NotPanics(t, func() {
		sink.Emit(context.Background(), Event{Action: "STOCK_PURCHASE", Entity: "Product", EntityID: "1"})
	})
}

func TestLogSinkNeverPanics(t *testing.T) {
	sink := NewLogSink(slog.Default())
	require.NotPanics(t, func() {
		sink.Emit(context.Background(), Event{Action: "STOCK_ADJUSTMENT", Entity: "Product", EntityID: "1"})
	})

	var nilSink *LogSink
	require.NotPanics(t, func() {
		nilSink.Emit(context.Background(), Event{})
	})
}
