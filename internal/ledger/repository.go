package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-pos/meridian/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by the engine.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpdateProductQuantity(ctx context.Context, productID int64, quantity float64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction. The
// product row lock taken by GetProductForUpdate serialises movements per
// product; a waiter re-reads the committed quantity once the lock is
// released, so concurrent sells observe each other's effects.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListMovements returns the newest movements for a product, tenant-scoped.
func (r *Repository) ListMovements(ctx context.Context, productID, businessID int64, limit int) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, business_id, movement_type, quantity, previous_quantity, new_quantity, note, COALESCE(ref_id::text, ''), ref_type, performed_by, created_at
FROM stock_movements
WHERE product_id=$1 AND business_id=$2
ORDER BY id DESC
LIMIT $3`, productID, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BusinessID, &m.Type, &m.Quantity, &m.PreviousQuantity, &m.NewQuantity, &m.Note, &m.RefID, &m.RefType, &m.PerformedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, business_id, name, quantity FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.BusinessID, &p.Name, &p.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, business_id, movement_type, quantity, previous_quantity, new_quantity, note, ref_id, ref_type, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		movement.ProductID, movement.BusinessID, string(movement.Type), movement.Quantity,
		movement.PreviousQuantity, movement.NewQuantity, movement.Note,
		nullUUID(movement.RefID), movement.RefType, nullInt(movement.PerformedBy), movement.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateProductQuantity(ctx context.Context, productID int64, quantity float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET quantity=$2, updated_at=NOW() WHERE id=$1`, productID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}
