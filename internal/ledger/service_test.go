package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

type memoryRepo struct {
	products  map[int64]ProductStock
	batches   map[int64]*PurchaseBatch
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]ProductStock), batches: make(map[int64]*PurchaseBatch)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListBatches(ctx context.Context, productID int64) ([]PurchaseBatch, error) {
	return (&memoryTx{repo: r}).ListBatchesForUpdate(ctx, productID)
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	out := []Movement{}
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ProductStock{}, shared.ErrNotFound
	}
	return p, nil
}

func (tx *memoryTx) ListBatchesForUpdate(ctx context.Context, productID int64) ([]PurchaseBatch, error) {
	out := []PurchaseBatch{}
	for id := int64(1); id <= tx.repo.nextID; id++ {
		if b, ok := tx.repo.batches[id]; ok && b.ProductID == productID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch PurchaseBatch) (int64, error) {
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	tx.repo.batches[batch.ID] = &batch
	return batch.ID, nil
}

func (tx *memoryTx) UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error {
	b, ok := tx.repo.batches[batchID]
	if !ok {
		return shared.ErrNotFound
	}
	b.Remaining = remaining
	return nil
}

func (tx *memoryTx) UpdateProductQuantities(ctx context.Context, productID int64, available decimal.Decimal, stock int64) error {
	p := tx.repo.products[productID]
	p.AvailableQty = available
	p.Stock = stock
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) UpdateProductValuation(ctx context.Context, productID int64, v Valuation) error {
	p := tx.repo.products[productID]
	p.CostPrice = v.CostPrice
	p.UnitCost = v.UnitCost
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

func seedFlour(repo *memoryRepo) {
	repo.products[1] = ProductStock{
		ID:               1,
		SKU:              "RM-FLOUR",
		StockType:        "raw_material",
		MeasurementValue: dec("500"),
	}
}

func appendLot(t *testing.T, svc *Service, productID int64, qty, cost string, receivedAt time.Time, method CostingMethod) int64 {
	t.Helper()
	id, err := svc.AppendBatch(context.Background(), AppendInput{
		ProductID:  productID,
		Quantity:   dec(qty),
		UnitCost:   dec(cost),
		ReceivedAt: receivedAt,
	}, method)
	require.NoError(t, err)
	return id
}

func TestAppendBatchRevaluesAndSyncs(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "1000", "10", t1, MethodFIFO)

	p := repo.products[1]
	require.True(t, p.AvailableQty.Equal(dec("1000")))
	require.Equal(t, int64(2), p.Stock)
	require.True(t, p.CostPrice.Equal(dec("10")))
	require.True(t, p.UnitCost.Equal(dec("0.02")))

	// A newer, pricier lot: FIFO valuation stays on the oldest open lot.
	appendLot(t, svc, 1, "200", "20", t1.Add(24*time.Hour), MethodFIFO)
	p = repo.products[1]
	require.True(t, p.AvailableQty.Equal(dec("1200")))
	require.Equal(t, int64(2), p.Stock)
	require.True(t, p.CostPrice.Equal(dec("10")))
}

func TestAppendBatchLIFOValuation(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "1000", "10", t1, MethodLIFO)
	appendLot(t, svc, 1, "500", "16", t1.Add(time.Hour), MethodLIFO)

	p := repo.products[1]
	require.True(t, p.CostPrice.Equal(dec("16")))
	require.True(t, p.UnitCost.Equal(dec("0.032")))
}

func TestAppendBatchWACValuation(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "500", "10", t1, MethodWAC)
	appendLot(t, svc, 1, "500", "20", t1.Add(time.Hour), MethodWAC)

	p := repo.products[1]
	require.True(t, p.CostPrice.Equal(dec("15")))
}

func TestDeductConservesLedger(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "700", "10", t1, MethodFIFO)
	appendLot(t, svc, 1, "500", "20", t1.Add(time.Hour), MethodFIFO)

	result, err := svc.Deduct(ctx, 1, dec("900"), MethodFIFO, MovementRef{Module: "SALES"})
	require.NoError(t, err)
	require.True(t, result.CostConsumed.Equal(dec("11000"))) // 700*10 + 200*20
	require.True(t, result.UnitsConsumed.Equal(dec("900")))

	p := repo.products[1]
	require.True(t, p.AvailableQty.Equal(dec("300")))
	require.Equal(t, int64(0), p.Stock)

	// availableQuantities must equal the sum of remainders.
	total := decimal.Zero
	for _, b := range repo.batches {
		require.False(t, b.Remaining.IsNegative())
		total = total.Add(b.Remaining)
	}
	require.True(t, p.AvailableQty.Equal(total))
}

func TestDeductSyncsUnmeasuredStockCount(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[2] = ProductStock{ID: 2, SKU: "FG-CAKE", StockType: "finished_good"}
	svc := NewService(repo, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 2, "20", "90", t1, MethodFIFO)
	require.Equal(t, int64(20), repo.products[2].Stock)

	_, err := svc.Deduct(ctx, 2, dec("4"), MethodFIFO, MovementRef{Module: "SALES"})
	require.NoError(t, err)

	// The base unit is the pack, so the count tracks the available quantity.
	p := repo.products[2]
	require.True(t, p.AvailableQty.Equal(dec("16")))
	require.Equal(t, int64(16), p.Stock)
}

func TestDeductInsufficientLeavesBatchesUntouched(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	b1 := appendLot(t, svc, 1, "500", "10", t1, MethodFIFO)
	b2 := appendLot(t, svc, 1, "500", "20", t1.Add(time.Hour), MethodFIFO)

	_, err := svc.Deduct(ctx, 1, dec("1100"), MethodFIFO, MovementRef{Module: "SALES"})
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("1000")))

	require.True(t, repo.batches[b1].Remaining.Equal(dec("500")))
	require.True(t, repo.batches[b2].Remaining.Equal(dec("500")))
	require.True(t, repo.products[1].AvailableQty.Equal(dec("1000")))
}

func TestDeductZeroIsNoop(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	result, err := svc.Deduct(context.Background(), 1, decimal.Zero, MethodFIFO, MovementRef{})
	require.NoError(t, err)
	require.True(t, result.UnitsConsumed.IsZero())
	require.Empty(t, repo.movements)
}

func TestDeductRejectsNegative(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	_, err := svc.Deduct(context.Background(), 1, dec("-5"), MethodFIFO, MovementRef{})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeductUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Deduct(context.Background(), 99, dec("5"), MethodFIFO, MovementRef{})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeductRecordsMovements(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "500", "10", t1, MethodFIFO)
	appendLot(t, svc, 1, "500", "20", t1.Add(time.Hour), MethodFIFO)

	_, err := svc.Deduct(ctx, 1, dec("600"), MethodFIFO, MovementRef{Module: "MFG", Note: "order 42"})
	require.NoError(t, err)

	outs := 0
	for _, m := range repo.movements {
		if m.Kind == MovementOut {
			outs++
			require.True(t, m.Qty.IsNegative())
			require.Equal(t, "MFG", m.RefModule)
		}
	}
	require.Equal(t, 2, outs)
}

func TestResyncRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	seedFlour(repo)
	svc := NewService(repo, nil)

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	appendLot(t, svc, 1, "1200", "10", t1, MethodFIFO)

	// Simulate drift in the denormalised fields.
	p := repo.products[1]
	p.AvailableQty = dec("50")
	p.Stock = 9
	repo.products[1] = p

	require.NoError(t, svc.Resync(context.Background(), 1))
	p = repo.products[1]
	require.True(t, p.AvailableQty.Equal(dec("1200")))
	require.Equal(t, int64(2), p.Stock)
}
