package reorder

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads product state from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProduct fetches one product scoped to the business. No lock is taken.
func (r *Repository) GetProduct(ctx context.Context, productID, businessID int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, business_id, name, quantity, reorder_threshold, optimal_quantity, active
FROM products WHERE id=$1 AND business_id=$2`, productID, businessID).
		Scan(&p.ID, &p.BusinessID, &p.Name, &p.Quantity, &p.ReorderThreshold, &p.OptimalQuantity, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListBelowThreshold returns active products whose quantity is at or below
// their configured threshold. The comparison runs row-wise in the database,
// never in application memory.
func (r *Repository) ListBelowThreshold(ctx context.Context, businessID int64) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, business_id, name, quantity, reorder_threshold, optimal_quantity, active
FROM products
WHERE business_id=$1 AND active AND reorder_threshold IS NOT NULL AND quantity <= reorder_threshold
ORDER BY quantity ASC, id ASC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.Name, &p.Quantity, &p.ReorderThreshold, &p.OptimalQuantity, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
