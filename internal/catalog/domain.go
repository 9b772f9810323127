package catalog

import (
	"errors"
	"time"
)

// Product is one inventory-tracked item owned by exactly one business.
// Quantity is owned by the stock ledger; the catalog never writes it.
// Products are deactivated, never deleted, so movement history stays intact.
type Product struct {
	ID               int64     `json:"id"`
	BusinessID       int64     `json:"business_id"`
	Name             string    `json:"name"`
	SKU              string    `json:"sku,omitempty"`
	Unit             string    `json:"unit,omitempty"`
	Quantity         float64   `json:"quantity"`
	ReorderThreshold *float64  `json:"reorder_threshold"`
	OptimalQuantity  *float64  `json:"optimal_quantity"`
	Consumable       bool      `json:"consumable"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateInput describes a new product. Stock starts at zero and arrives
// through the ledger.
type CreateInput struct {
	BusinessID       int64
	Name             string
	SKU              string
	Unit             string
	ReorderThreshold *float64
	OptimalQuantity  *float64
	Consumable       bool
}

// UpdateInput changes product metadata and thresholds. Quantity is absent on
// purpose.
type UpdateInput struct {
	Name             string
	SKU              string
	Unit             string
	ReorderThreshold *float64
	OptimalQuantity  *float64
	Consumable       bool
}

// ListFilters narrows product listings.
type ListFilters struct {
	BusinessID int64
	ActiveOnly bool
	Limit      int
	Offset     int
}

// ErrNotFound indicates the product id did not resolve within the business.
var ErrNotFound = errors.New("catalog: product not found")

// ErrDuplicateSKU indicates a SKU collision within the business.
var ErrDuplicateSKU = errors.New("catalog: sku already in use")

// ErrInvalidInput indicates a malformed product definition.
var ErrInvalidInput = errors.New("catalog: invalid product")
