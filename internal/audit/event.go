package audit

import (
	"context"
	"time"
)

// Event is a structured audit record describing one state change. Events are
// delivered best-effort: the mutation they describe has already committed by
// the time an event is emitted.
type Event struct {
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	BusinessID int64          `json:"business_id"`
	ActorID    int64          `json:"actor_id"`
	OldValue   map[string]any `json:"old_value,omitempty"`
	NewValue   map[string]any `json:"new_value,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Sink accepts audit events. Emit never returns an error: delivery failures
// are logged by the implementation and must not reach the caller.
type Sink interface {
	Emit(ctx context.Context, event Event)
}
