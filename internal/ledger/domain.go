package ledger

import (
	"errors"
	"fmt"
	"time"
)

// MovementType classifies why a stock movement changes a product's quantity.
type MovementType string

const (
	// MovementPurchase records goods received from a supplier.
	MovementPurchase MovementType = "PURCHASE"
	// MovementSale records stock sold at the point of sale.
	MovementSale MovementType = "SALE"
	// MovementServiceUsage records stock consumed while performing a service.
	MovementServiceUsage MovementType = "SERVICE_USAGE"
	// MovementAdjustment records a manual correction against a physical count.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementReturn records goods returned by a customer.
	MovementReturn MovementType = "RETURN"
)

// policy returns the sign applied to the quantity and whether the resulting
// quantity must stay at or above zero. ADJUSTMENT subtracts without a floor:
// the physical count is ground truth even when it implies the ledger was
// already wrong.
func (t MovementType) policy() (direction float64, floor bool, ok bool) {
	switch t {
	case MovementPurchase, MovementReturn:
		return 1, false, true
	case MovementSale, MovementServiceUsage:
		return -1, true, true
	case MovementAdjustment:
		return -1, false, true
	}
	return 0, false, false
}

// Product is the slice of product state the ledger engine needs.
type Product struct {
	ID         int64
	BusinessID int64
	Name       string
	Quantity   float64
}

// Movement is an immutable, append-only ledger entry. Quantity is always
// stored positive; direction is implied by Type.
type Movement struct {
	ID               int64
	ProductID        int64
	BusinessID       int64
	Type             MovementType
	Quantity         float64
	PreviousQuantity float64
	NewQuantity      float64
	Note             string
	RefID            string
	RefType          string
	PerformedBy      int64
	CreatedAt        time.Time
}

// MovementInput describes a requested stock mutation.
type MovementInput struct {
	ProductID      int64
	BusinessID     int64
	ActorID        int64
	Type           MovementType
	Quantity       float64
	Note           string
	RefID          string
	RefType        string
	IdempotencyKey string
}

// StockSummary is returned to callers alongside the created movement.
type StockSummary struct {
	ProductID        int64
	Name             string
	PreviousQuantity float64
	NewQuantity      float64
}

// MovementResult bundles the persisted movement with the product summary.
type MovementResult struct {
	Movement Movement
	Product  StockSummary
}

// ErrInvalidQuantity indicates a non-positive quantity magnitude.
var ErrInvalidQuantity = errors.New("ledger: quantity must be greater than zero")

// ErrInvalidMovementType indicates an unknown movement type tag.
var ErrInvalidMovementType = errors.New("ledger: invalid stock movement type")

// ErrProductNotFound indicates the product id did not resolve.
var ErrProductNotFound = errors.New("ledger: product not found")

// ErrWrongBusiness indicates the product belongs to a different tenant.
var ErrWrongBusiness = errors.New("ledger: product does not belong to this business")

// InsufficientStockError is returned when a floor-enforced subtractive
// movement would drive the quantity below zero.
type InsufficientStockError struct {
	Available float64
	Required  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock: available %g, required %g", e.Available, e.Required)
}
