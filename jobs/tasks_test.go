package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian/internal/audit"
)

type fakeRecorder struct {
	events []audit.Event
	err    error
}

func (f *fakeRecorder) Record(_ context.Context, event audit.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func TestAuditRecordHandler(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := NewAuditRecordHandler(recorder, slog.Default())

	payload, err := json.Marshal(audit.Event{
		Action:   "STOCK_SALE",
		Entity:   "Product",
		EntityID: "42",
	})
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(audit.TaskTypeRecord, payload))
	require.NoError(t, err)
	require.Len(t, recorder.events, 1)
	require.Equal(t, "STOCK_SALE", recorder.events[0].Action)
}

func TestAuditRecordHandlerBadPayload(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := NewAuditRecordHandler(recorder, slog.Default())

	err := handler(context.Background(), asynq.NewTask(audit.TaskTypeRecord, []byte("not-json")))
	require.ErrorIs(t, err, asynq.SkipRetry, "malformed payloads must not be retried")
	require.Empty(t, recorder.events)
}

func TestAuditRecordHandlerRetriesPersistenceErrors(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	handler := NewAuditRecordHandler(recorder, slog.Default())

	payload, err := json.Marshal(audit.Event{Action: "STOCK_SALE", Entity: "Product", EntityID: "1"})
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(audit.TaskTypeRecord, payload))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type fakeCleaner struct {
	olderThan time.Duration
	calls     int
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.calls++
	f.olderThan = olderThan
	return nil
}

func TestIdempotencyCleanupHandler(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewIdempotencyCleanupHandler(cleaner, 24*time.Hour)

	err := handler(context.Background(), NewIdempotencyCleanupTask())
	require.NoError(t, err)
	require.Equal(t, 1, cleaner.calls)
	require.Equal(t, 24*time.Hour, cleaner.olderThan)
}
