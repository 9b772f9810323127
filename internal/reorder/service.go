// Package reorder derives replenishment advice from product state. It never
// writes: the stock ledger owns all quantity changes.
package reorder

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Product is the slice of product state the advisor reads.
type Product struct {
	ID               int64
	BusinessID       int64
	Name             string
	Quantity         float64
	ReorderThreshold *float64
	OptimalQuantity  *float64
	Active           bool
}

// Status labels for a product's reorder state.
const (
	StatusLowStock = "LOW_STOCK"
	StatusOK       = "OK"
)

// Status is the advisor's verdict for one product.
type Status struct {
	ProductID        int64    `json:"product_id"`
	Name             string   `json:"name"`
	Quantity         float64  `json:"quantity"`
	ReorderThreshold *float64 `json:"reorder_threshold"`
	OptimalQuantity  *float64 `json:"optimal_quantity"`
	NeedsReorder     bool     `json:"needs_reorder"`
	ReorderAmount    float64  `json:"reorder_amount"`
	Status           string   `json:"status"`
}

// ErrProductNotFound indicates the product id did not resolve.
var ErrProductNotFound = errors.New("reorder: product not found")

// RepositoryPort abstracts the read-only product queries.
type RepositoryPort interface {
	GetProduct(ctx context.Context, productID, businessID int64) (Product, error)
	ListBelowThreshold(ctx context.Context, businessID int64) ([]Product, error)
}

// CachePort caches low-stock listings per business. Both methods are
// best-effort; a miss or failure falls through to the repository.
type CachePort interface {
	GetLowStock(ctx context.Context, businessID int64) ([]Status, bool)
	SetLowStock(ctx context.Context, businessID int64, statuses []Status)
}

// Service computes reorder advice.
type Service struct {
	repo  RepositoryPort
	cache CachePort
	group singleflight.Group
}

// NewService builds the advisor. cache may be nil.
func NewService(repo RepositoryPort, cache CachePort) *Service {
	return &Service{repo: repo, cache: cache}
}

// evaluate derives the reorder fields from raw product state. A nil threshold
// means "never flag"; the reorder amount is computed whenever an optimal
// quantity is configured, regardless of the flag.
func evaluate(p Product) Status {
	status := Status{
		ProductID:        p.ID,
		Name:             p.Name,
		Quantity:         p.Quantity,
		ReorderThreshold: p.ReorderThreshold,
		OptimalQuantity:  p.OptimalQuantity,
		Status:           StatusOK,
	}
	if p.ReorderThreshold != nil && p.Quantity <= *p.ReorderThreshold {
		status.NeedsReorder = true
		status.Status = StatusLowStock
	}
	if p.OptimalQuantity != nil {
		amount := *p.OptimalQuantity - p.Quantity
		if amount > 0 {
			status.ReorderAmount = amount
		}
	}
	return status
}

// Status returns the reorder verdict for one product.
func (s *Service) Status(ctx context.Context, productID, businessID int64) (Status, error) {
	if productID == 0 || businessID == 0 {
		return Status{}, errors.New("reorder: product and business required")
	}
	product, err := s.repo.GetProduct(ctx, productID, businessID)
	if err != nil {
		return Status{}, err
	}
	return evaluate(product), nil
}

// LowStock lists all active products of a business at or below their
// threshold, ascending by quantity. Concurrent identical requests are
// collapsed; results may be served from a short-lived cache.
func (s *Service) LowStock(ctx context.Context, businessID int64) ([]Status, error) {
	if businessID == 0 {
		return nil, errors.New("reorder: business required")
	}
	if s.cache != nil {
		if statuses, ok := s.cache.GetLowStock(ctx, businessID); ok {
			return statuses, nil
		}
	}
	key := fmt.Sprintf("lowstock:%d", businessID)
	value, err, _ := s.group.Do(key, func() (any, error) {
		products, err := s.repo.ListBelowThreshold(ctx, businessID)
		if err != nil {
			return nil, err
		}
		statuses := make([]Status, 0, len(products))
		for _, p := range products {
			statuses = append(statuses, evaluate(p))
		}
		if s.cache != nil {
			s.cache.SetLowStock(ctx, businessID, statuses)
		}
		return statuses, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]Status), nil
}
