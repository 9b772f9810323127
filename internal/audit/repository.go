package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEntries returns audit rows matching the filters, newest first. The
// WHERE clause grows one predicate per set filter; limit and offset are
// decided by the caller.
func (r *Repository) ListEntries(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs WHERE business_id=$1`)
	args := []any{filters.BusinessID}
	if filters.Entity != "" {
		args = append(args, filters.Entity)
		fmt.Fprintf(&query, " AND entity=$%d", len(args))
	}
	if filters.Action != "" {
		args = append(args, filters.Action)
		fmt.Fprintf(&query, " AND action=$%d", len(args))
	}
	if !filters.From.IsZero() {
		args = append(args, filters.From)
		fmt.Fprintf(&query, " AND occurred_at >= $%d", len(args))
	}
	if !filters.To.IsZero() {
		args = append(args, filters.To)
		fmt.Fprintf(&query, " AND occurred_at <= $%d", len(args))
	}
	args = append(args, limit, offset)
	fmt.Fprintf(&query, " ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []TimelineRow{}
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
