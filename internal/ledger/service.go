package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-pos/meridian/internal/audit"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, productID, businessID int64, limit int) ([]Movement, error)
}

// IdempotencyPort guards repeated submissions of the same movement.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LowStockInvalidator drops cached low-stock listings after a movement, so
// reorder reads reflect committed quantities without waiting out the TTL.
type LowStockInvalidator interface {
	InvalidateLowStock(ctx context.Context, businessID int64)
}

// Service is the stock ledger engine: the only code path permitted to change
// a product's quantity. Every quantity change, regardless of business reason,
// goes through ApplyMovement.
type Service struct {
	repo        RepositoryPort
	audit       audit.Sink
	idempotency IdempotencyPort
	lowStock    LowStockInvalidator
}

// NewService builds the engine. sink, idem and lowStock may be nil.
func NewService(repo RepositoryPort, sink audit.Sink, idem IdempotencyPort, lowStock LowStockInvalidator) *Service {
	return &Service{repo: repo, audit: sink, idempotency: idem, lowStock: lowStock}
}

// ApplyMovement validates the input, applies the movement-type policy inside
// a single transaction and appends the immutable movement record atomically
// with the quantity update. On any failure nothing is persisted. After commit
// the business's cached low-stock listing is dropped and the audit event is
// emitted; neither can fail the call.
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	if input.Quantity <= 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	if input.ProductID == 0 || input.BusinessID == 0 {
		return MovementResult{}, errors.New("ledger: product and business required")
	}
	if input.RefID != "" {
		if _, err := uuid.Parse(input.RefID); err != nil {
			return MovementResult{}, fmt.Errorf("ledger: invalid reference id: %w", err)
		}
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "ledger"); err != nil {
			return MovementResult{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		// Tenant check comes before any quantity arithmetic so a leaked or
		// guessed product id never mutates another business's stock.
		if product.BusinessID != input.BusinessID {
			return ErrWrongBusiness
		}
		direction, floor, ok := input.Type.policy()
		if !ok {
			return ErrInvalidMovementType
		}
		previous := product.Quantity
		next := previous + direction*input.Quantity
		if floor && next < 0 {
			return &InsufficientStockError{Available: previous, Required: input.Quantity}
		}
		movement := Movement{
			ProductID:        product.ID,
			BusinessID:       input.BusinessID,
			Type:             input.Type,
			Quantity:         input.Quantity,
			PreviousQuantity: previous,
			NewQuantity:      next,
			Note:             input.Note,
			RefID:            input.RefID,
			RefType:          input.RefType,
			PerformedBy:      input.ActorID,
			CreatedAt:        now,
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		if err := tx.UpdateProductQuantity(ctx, product.ID, next); err != nil {
			return err
		}
		result = MovementResult{
			Movement: movement,
			Product: StockSummary{
				ProductID:        product.ID,
				Name:             product.Name,
				PreviousQuantity: previous,
				NewQuantity:      next,
			},
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return MovementResult{}, err
	}

	if s.lowStock != nil {
		s.lowStock.InvalidateLowStock(ctx, input.BusinessID)
	}
	if s.audit != nil {
		s.audit.Emit(ctx, audit.Event{
			Action:     fmt.Sprintf("STOCK_%s", input.Type),
			Entity:     "Product",
			EntityID:   strconv.FormatInt(result.Product.ProductID, 10),
			BusinessID: input.BusinessID,
			ActorID:    input.ActorID,
			OldValue:   map[string]any{"quantity": result.Product.PreviousQuantity},
			NewValue:   map[string]any{"quantity": result.Product.NewQuantity},
			OccurredAt: now,
		})
	}
	return result, nil
}

// AddStockInput describes a stock receipt.
type AddStockInput struct {
	ProductID      int64
	BusinessID     int64
	ActorID        int64
	Quantity       float64
	Note           string
	IdempotencyKey string
}

// AddStock records a purchase receipt.
func (s *Service) AddStock(ctx context.Context, input AddStockInput) (MovementResult, error) {
	return s.ApplyMovement(ctx, MovementInput{
		ProductID:      input.ProductID,
		BusinessID:     input.BusinessID,
		ActorID:        input.ActorID,
		Type:           MovementPurchase,
		Quantity:       input.Quantity,
		Note:           input.Note,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// SellInput describes a point-of-sale line item.
type SellInput struct {
	ProductID      int64
	BusinessID     int64
	ActorID        int64
	Quantity       float64
	SaleID         string
	Note           string
	IdempotencyKey string
}

// RefTypeSale and RefTypeServiceSale tag the originating entity of a movement.
const (
	RefTypeSale        = "SALE"
	RefTypeServiceSale = "SERVICE_SALE"
)

// Sell records a point-of-sale checkout line.
func (s *Service) Sell(ctx context.Context, input SellInput) (MovementResult, error) {
	return s.ApplyMovement(ctx, MovementInput{
		ProductID:      input.ProductID,
		BusinessID:     input.BusinessID,
		ActorID:        input.ActorID,
		Type:           MovementSale,
		Quantity:       input.Quantity,
		Note:           input.Note,
		RefID:          input.SaleID,
		RefType:        RefTypeSale,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// ConsumeInput describes product consumption during a service.
type ConsumeInput struct {
	ProductID      int64
	BusinessID     int64
	ActorID        int64
	Quantity       float64
	ServiceSaleID  string
	Note           string
	IdempotencyKey string
}

// ConsumeInService records stock used while performing a service.
func (s *Service) ConsumeInService(ctx context.Context, input ConsumeInput) (MovementResult, error) {
	return s.ApplyMovement(ctx, MovementInput{
		ProductID:      input.ProductID,
		BusinessID:     input.BusinessID,
		ActorID:        input.ActorID,
		Type:           MovementServiceUsage,
		Quantity:       input.Quantity,
		Note:           input.Note,
		RefID:          input.ServiceSaleID,
		RefType:        RefTypeServiceSale,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// AdjustInput describes a manual correction with a signed delta.
type AdjustInput struct {
	ProductID      int64
	BusinessID     int64
	ActorID        int64
	Delta          float64
	Reason         string
	IdempotencyKey string
}

// Adjust records a manual correction. Negative deltas post an ADJUSTMENT with
// the absolute magnitude; positive deltas post a PURCHASE. Direction is kept
// in the note either way.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (MovementResult, error) {
	if input.Delta == 0 {
		return MovementResult{}, ErrInvalidQuantity
	}
	movementType := MovementAdjustment
	magnitude := -input.Delta
	note := fmt.Sprintf("stock decreased by %g", -input.Delta)
	if input.Delta > 0 {
		movementType = MovementPurchase
		magnitude = input.Delta
		note = fmt.Sprintf("stock increased by %g", input.Delta)
	}
	if input.Reason != "" {
		note = fmt.Sprintf("%s: %s", note, input.Reason)
	}
	return s.ApplyMovement(ctx, MovementInput{
		ProductID:      input.ProductID,
		BusinessID:     input.BusinessID,
		ActorID:        input.ActorID,
		Type:           movementType,
		Quantity:       magnitude,
		Note:           note,
		IdempotencyKey: input.IdempotencyKey,
	})
}

// Movements lists a product's movement history, newest first.
func (s *Service) Movements(ctx context.Context, productID, businessID int64, limit int) ([]Movement, error) {
	if productID == 0 || businessID == 0 {
		return nil, errors.New("ledger: product and business required")
	}
	return s.repo.ListMovements(ctx, productID, businessID, limit)
}
