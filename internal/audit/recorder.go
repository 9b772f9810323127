package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder writes events into audit_logs. It runs inside the worker process,
// after the originating transaction has committed.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record persists the event.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	if r == nil {
		return errors.New("audit recorder not initialised")
	}
	if event.Action == "" || event.Entity == "" || event.EntityID == "" {
		return errors.New("audit event requires action/entity/entity_id")
	}
	meta := map[string]any{}
	if event.OldValue != nil {
		meta["old_value"] = event.OldValue
	}
	if event.NewValue != nil {
		meta["new_value"] = event.NewValue
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, business_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ActorID, event.BusinessID, event.Action, event.Entity, event.EntityID, metaJSON, occurredAt)
	return err
}
