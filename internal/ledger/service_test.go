package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian/internal/audit"
	"github.com/meridian-pos/meridian/internal/shared"
)

type fakeRepo struct {
	mu        sync.Mutex
	products  map[int64]Product
	movements []Movement
	nextID    int64
	txCalls   int
}

func newFakeRepo(products ...Product) *fakeRepo {
	repo := &fakeRepo{products: map[int64]Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

// WithTx serialises callbacks with a mutex and rolls back all writes when the
// callback errors, mimicking a row-locked transaction.
func (f *fakeRepo) WithTx(_ context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	before := make(map[int64]Product, len(f.products))
	for id, p := range f.products {
		before[id] = p
	}
	beforeMovements := len(f.movements)
	if err := fn(context.Background(), (*fakeTx)(f)); err != nil {
		f.products = before
		f.movements = f.movements[:beforeMovements]
		return err
	}
	return nil
}

func (f *fakeRepo) ListMovements(_ context.Context, productID, businessID int64, _ int) ([]Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Movement{}
	for i := len(f.movements) - 1; i >= 0; i-- {
		m := f.movements[i]
		if m.ProductID == productID && m.BusinessID == businessID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) quantity(productID int64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].Quantity
}

type fakeTx fakeRepo

func (f *fakeTx) GetProductForUpdate(_ context.Context, productID int64) (Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (f *fakeTx) InsertMovement(_ context.Context, movement Movement) (int64, error) {
	f.nextID++
	movement.ID = f.nextID
	f.movements = append(f.movements, movement)
	return movement.ID, nil
}

func (f *fakeTx) UpdateProductQuantity(_ context.Context, productID int64, quantity float64) error {
	p, ok := f.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.Quantity = quantity
	f.products[productID] = p
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *fakeSink) Emit(_ context.Context, event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

type fakeIdempotency struct {
	mu      sync.Mutex
	keys    map[string]bool
	deleted []string
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]bool{}}
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdempotency) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func TestApplyMovementSignRules(t *testing.T) {
	cases := []struct {
		name     string
		typ      MovementType
		start    float64
		quantity float64
		want     float64
	}{
		{"purchase adds", MovementPurchase, 10, 5, 15},
		{"return adds", MovementReturn, 10, 2, 12},
		{"sale subtracts", MovementSale, 10, 3, 7},
		{"service usage subtracts", MovementServiceUsage, 10, 4, 6},
		{"adjustment subtracts", MovementAdjustment, 10, 6, 4},
		{"adjustment may go negative", MovementAdjustment, 5, 8, -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Name: "Shampoo", Quantity: tc.start})
			svc := NewService(repo, nil, nil, nil)

			result, err := svc.ApplyMovement(context.Background(), MovementInput{
				ProductID:  1,
				BusinessID: 7,
				ActorID:    3,
				Type:       tc.typ,
				Quantity:   tc.quantity,
			})
			require.NoError(t, err)
			require.Equal(t, tc.start, result.Movement.PreviousQuantity)
			require.Equal(t, tc.want, result.Movement.NewQuantity)
			require.Equal(t, tc.quantity, result.Movement.Quantity)
			require.Equal(t, tc.want, repo.quantity(1))
		})
	}
}

func TestApplyMovementInsufficientStock(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Name: "Shampoo", Quantity: 7})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, ActorID: 3, Quantity: 8,
	})

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 7.0, insufficient.Available)
	require.Equal(t, 8.0, insufficient.Required)
	require.Equal(t, 7.0, repo.quantity(1), "rejected movement must not change stock")
	movements, err := repo.ListMovements(context.Background(), 1, 7, 0)
	require.NoError(t, err)
	require.Empty(t, movements, "rejected movement must not be recorded")
}

func TestApplyMovementInvalidQuantity(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	for _, qty := range []float64{0, -4} {
		_, err := svc.ApplyMovement(context.Background(), MovementInput{
			ProductID: 1, BusinessID: 7, Type: MovementSale, Quantity: qty,
		})
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	require.Zero(t, repo.txCalls, "invalid quantity must be rejected before opening a transaction")
}

func TestApplyMovementUnknownType(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1, BusinessID: 7, Type: MovementType("TRANSFER"), Quantity: 1,
	})
	require.ErrorIs(t, err, ErrInvalidMovementType)
	require.Equal(t, 10.0, repo.quantity(1))
}

func TestApplyMovementProductNotFound(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 99, BusinessID: 7, Type: MovementPurchase, Quantity: 1,
	})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestApplyMovementWrongBusiness(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1, BusinessID: 8, Type: MovementSale, Quantity: 1,
	})
	require.ErrorIs(t, err, ErrWrongBusiness)
	require.Equal(t, 10.0, repo.quantity(1), "cross-tenant request must not mutate stock")
}

func TestApplyMovementInvalidRefID(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 1, SaleID: "not-a-uuid",
	})
	require.Error(t, err)
	require.Zero(t, repo.txCalls)
}

func TestApplyMovementEmitsAuditEvent(t *testing.T) {
	repo := newFakeRepo(Product{ID: 42, BusinessID: 7, Name: "Conditioner", Quantity: 10})
	sink := &fakeSink{}
	svc := NewService(repo, sink, nil, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 42, BusinessID: 7, ActorID: 3, Quantity: 3,
	})
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	require.Equal(t, "STOCK_SALE", event.Action)
	require.Equal(t, "Product", event.Entity)
	require.Equal(t, "42", event.EntityID)
	require.Equal(t, int64(7), event.BusinessID)
	require.Equal(t, int64(3), event.ActorID)
	require.Equal(t, map[string]any{"quantity": 10.0}, event.OldValue)
	require.Equal(t, map[string]any{"quantity": 7.0}, event.NewValue)
}

func TestApplyMovementNoAuditOnFailure(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 1})
	sink := &fakeSink{}
	svc := NewService(repo, sink, nil, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 5,
	})
	require.Error(t, err)
	require.Empty(t, sink.events)
}

func TestApplyMovementIdempotency(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	idem := newFakeIdempotency()
	svc := NewService(repo, nil, idem, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 2, IdempotencyKey: "req-1",
	})
	require.NoError(t, err)

	_, err = svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 2, IdempotencyKey: "req-1",
	})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, 8.0, repo.quantity(1), "replay must apply the movement exactly once")
}

func TestApplyMovementReleasesKeyOnFailure(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 1})
	idem := newFakeIdempotency()
	svc := NewService(repo, nil, idem, nil)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 5, IdempotencyKey: "req-2",
	})
	require.Error(t, err)
	require.Equal(t, []string{"req-2"}, idem.deleted, "failed movement must release its key for retry")
}

func TestSellWrapperTagsReference(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	saleID := "0d2a2c3e-9a41-4a4c-a2bb-6a1f5f8e2a10"
	result, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 1, SaleID: saleID,
	})
	require.NoError(t, err)
	require.Equal(t, MovementSale, result.Movement.Type)
	require.Equal(t, saleID, result.Movement.RefID)
	require.Equal(t, RefTypeSale, result.Movement.RefType)
}

func TestConsumeWrapperTagsReference(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.ConsumeInService(context.Background(), ConsumeInput{
		ProductID: 1, BusinessID: 7, Quantity: 2,
		ServiceSaleID: "3f0a0b52-7e17-4a6e-b7a7-1f40f5f0c9d4",
	})
	require.NoError(t, err)
	require.Equal(t, MovementServiceUsage, result.Movement.Type)
	require.Equal(t, RefTypeServiceSale, result.Movement.RefType)
}

func TestAdjustNegativeDelta(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 7})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		ProductID: 1, BusinessID: 7, Delta: -7, Reason: "annual count",
	})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, result.Movement.Type)
	require.Equal(t, 7.0, result.Movement.Quantity)
	require.Equal(t, 0.0, result.Movement.NewQuantity)
	require.Contains(t, result.Movement.Note, "stock decreased by 7")
	require.Contains(t, result.Movement.Note, "annual count")
}

func TestAdjustBelowZero(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 20})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		ProductID: 1, BusinessID: 7, Delta: -25,
	})
	require.NoError(t, err)
	require.Equal(t, -5.0, result.Movement.NewQuantity)
	require.Equal(t, -5.0, repo.quantity(1), "adjustment honours the physical count even below zero")
}

func TestAdjustPositiveDeltaPostsPurchase(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 3})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		ProductID: 1, BusinessID: 7, Delta: 4,
	})
	require.NoError(t, err)
	require.Equal(t, MovementPurchase, result.Movement.Type)
	require.Equal(t, 7.0, result.Movement.NewQuantity)
	require.Contains(t, result.Movement.Note, "stock increased by 4")
}

func TestAdjustZeroDelta(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		ProductID: 1, BusinessID: 7, Delta: 0,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddStockOnEmptyProduct(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 0})
	svc := NewService(repo, nil, nil, nil)

	result, err := svc.AddStock(context.Background(), AddStockInput{
		ProductID: 1, BusinessID: 7, Quantity: 20,
	})
	require.NoError(t, err)
	require.Equal(t, MovementPurchase, result.Movement.Type)
	require.Equal(t, 20.0, result.Movement.NewQuantity)
}

// Two checkouts race for the last unit. The per-product lock serialises them:
// exactly one wins and the loser sees the post-commit quantity.
func TestConcurrentSellsLastUnit(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 1})
	svc := NewService(repo, nil, nil, nil)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sell(context.Background(), SellInput{
				ProductID: 1, BusinessID: 7, Quantity: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failures int
	for err := range errs {
		if err != nil {
			var insufficient *InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
			failures++
		}
	}
	require.Equal(t, 1, failures, "exactly one of two racing sells must fail")
	require.Equal(t, 0.0, repo.quantity(1))
	movements, err := repo.ListMovements(context.Background(), 1, 7, 0)
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

func TestMovementsRequiresScope(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, nil)
	_, err := svc.Movements(context.Background(), 0, 7, 10)
	require.Error(t, err)
	_, err = svc.Movements(context.Background(), 1, 0, 10)
	require.Error(t, err)
}

func TestMovementsNewestFirst(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 0})
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.AddStock(context.Background(), AddStockInput{ProductID: 1, BusinessID: 7, Quantity: 10})
	require.NoError(t, err)
	_, err = svc.Sell(context.Background(), SellInput{ProductID: 1, BusinessID: 7, Quantity: 4})
	require.NoError(t, err)

	movements, err := svc.Movements(context.Background(), 1, 7, 10)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Equal(t, MovementSale, movements[0].Type)
	require.Equal(t, MovementPurchase, movements[1].Type)
}

func TestPolicyRejectsUnknownTypes(t *testing.T) {
	_, _, ok := MovementType("").policy()
	require.False(t, ok)
	_, _, ok = MovementType("purchase").policy()
	require.False(t, ok, "movement types are case sensitive")
}

var errBoom = errors.New("boom")

type failingTxRepo struct{ fakeRepo }

func (f *failingTxRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return errBoom
}

func TestApplyMovementPropagatesRepoError(t *testing.T) {
	svc := NewService(&failingTxRepo{}, nil, nil, nil)
	_, err := svc.ApplyMovement(context.Background(), MovementInput{
		ProductID: 1, BusinessID: 7, Type: MovementPurchase, Quantity: 1,
	})
	require.ErrorIs(t, err, errBoom)
}

type fakeInvalidator struct {
	mu         sync.Mutex
	businesses []int64
}

func (f *fakeInvalidator) InvalidateLowStock(_ context.Context, businessID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.businesses = append(f.businesses, businessID)
}

func TestApplyMovementInvalidatesLowStockCache(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 10})
	invalidator := &fakeInvalidator{}
	svc := NewService(repo, nil, nil, invalidator)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 3,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{7}, invalidator.businesses, "committed movement must drop the cached listing")
}

func TestApplyMovementNoInvalidationOnFailure(t *testing.T) {
	repo := newFakeRepo(Product{ID: 1, BusinessID: 7, Quantity: 1})
	invalidator := &fakeInvalidator{}
	svc := NewService(repo, nil, nil, invalidator)

	_, err := svc.Sell(context.Background(), SellInput{
		ProductID: 1, BusinessID: 7, Quantity: 5,
	})
	require.Error(t, err)
	require.Empty(t, invalidator.businesses)
}
