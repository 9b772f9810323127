package catalog

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort abstracts product persistence.
type RepositoryPort interface {
	Create(ctx context.Context, input CreateInput) (Product, error)
	Get(ctx context.Context, productID, businessID int64) (Product, error)
	List(ctx context.Context, filters ListFilters) ([]Product, error)
	Update(ctx context.Context, productID, businessID int64, input UpdateInput) (Product, error)
	Deactivate(ctx context.Context, productID, businessID int64) error
}

// Service manages the product catalog.
type Service struct {
	repo RepositoryPort
}

// NewService builds the catalog service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validateDefinition(name string, threshold, optimal *float64) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if threshold != nil && *threshold < 0 {
		return fmt.Errorf("%w: reorder threshold must not be negative", ErrInvalidInput)
	}
	if optimal != nil && *optimal < 0 {
		return fmt.Errorf("%w: optimal quantity must not be negative", ErrInvalidInput)
	}
	return nil
}

// Create registers a new product with zero stock.
func (s *Service) Create(ctx context.Context, input CreateInput) (Product, error) {
	if input.BusinessID == 0 {
		return Product{}, fmt.Errorf("%w: business is required", ErrInvalidInput)
	}
	if err := validateDefinition(input.Name, input.ReorderThreshold, input.OptimalQuantity); err != nil {
		return Product{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	return s.repo.Create(ctx, input)
}

// Get fetches one product, tenant-scoped.
func (s *Service) Get(ctx context.Context, productID, businessID int64) (Product, error) {
	if productID <= 0 || businessID == 0 {
		return Product{}, ErrNotFound
	}
	return s.repo.Get(ctx, productID, businessID)
}

// List returns products of a business.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	if filters.BusinessID == 0 {
		return nil, fmt.Errorf("%w: business is required", ErrInvalidInput)
	}
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.List(ctx, filters)
}

// Update changes metadata and thresholds, never the quantity.
func (s *Service) Update(ctx context.Context, productID, businessID int64, input UpdateInput) (Product, error) {
	if productID <= 0 || businessID == 0 {
		return Product{}, ErrNotFound
	}
	if err := validateDefinition(input.Name, input.ReorderThreshold, input.OptimalQuantity); err != nil {
		return Product{}, err
	}
	input.Name = strings.TrimSpace(input.Name)
	return s.repo.Update(ctx, productID, businessID, input)
}

// Deactivate retires a product. Movement history is preserved.
func (s *Service) Deactivate(ctx context.Context, productID, businessID int64) error {
	if productID <= 0 || businessID == 0 {
		return ErrNotFound
	}
	return s.repo.Deactivate(ctx, productID, businessID)
}
