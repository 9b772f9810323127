package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, business_id, name, COALESCE(sku, ''), COALESCE(unit, ''), quantity, reorder_threshold, optimal_quantity, consumable, active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.BusinessID, &p.Name, &p.SKU, &p.Unit, &p.Quantity,
		&p.ReorderThreshold, &p.OptimalQuantity, &p.Consumable, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func mapDuplicateSKU(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSKU
	}
	return err
}

// Create inserts a product with zero quantity.
func (r *Repository) Create(ctx context.Context, input CreateInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO products (business_id, name, sku, unit, quantity, reorder_threshold, optimal_quantity, consumable, active, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), 0, $5, $6, $7, TRUE, NOW(), NOW())
RETURNING `+productColumns,
		input.BusinessID, input.Name, input.SKU, input.Unit,
		input.ReorderThreshold, input.OptimalQuantity, input.Consumable)
	product, err := scanProduct(row)
	if err != nil {
		return Product{}, mapDuplicateSKU(err)
	}
	return product, nil
}

// Get fetches one product scoped to the business.
func (r *Repository) Get(ctx context.Context, productID, businessID int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND business_id=$2`, productID, businessID)
	return scanProduct(row)
}

// List returns products of a business ordered by name.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE business_id=$1`
	if filters.ActiveOnly {
		query += ` AND active`
	}
	query += ` ORDER BY name ASC, id ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, filters.BusinessID, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

// Update rewrites metadata and thresholds. Quantity stays untouched.
func (r *Repository) Update(ctx context.Context, productID, businessID int64, input UpdateInput) (Product, error) {
	row := r.pool.QueryRow(ctx, `UPDATE products
SET name=$3, sku=NULLIF($4, ''), unit=NULLIF($5, ''), reorder_threshold=$6, optimal_quantity=$7, consumable=$8, updated_at=NOW()
WHERE id=$1 AND business_id=$2
RETURNING `+productColumns,
		productID, businessID, input.Name, input.SKU, input.Unit,
		input.ReorderThreshold, input.OptimalQuantity, input.Consumable)
	product, err := scanProduct(row)
	if err != nil {
		return Product{}, mapDuplicateSKU(err)
	}
	return product, nil
}

// Deactivate flags the product inactive.
func (r *Repository) Deactivate(ctx context.Context, productID, businessID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET active=FALSE, updated_at=NOW() WHERE id=$1 AND business_id=$2`, productID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
