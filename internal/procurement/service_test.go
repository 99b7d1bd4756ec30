package procurement

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

type memoryState struct {
	products  map[int64]ledger.ProductStock
	batches   map[int64]ledger.PurchaseBatch
	batchSeq  int64
	movements []ledger.Movement
	orders    map[int64]PurchaseOrder
	lines     map[int64][]POLine
	orderSeq  int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		products: make(map[int64]ledger.ProductStock),
		batches:  make(map[int64]ledger.PurchaseBatch),
		orders:   make(map[int64]PurchaseOrder),
		lines:    make(map[int64][]POLine),
	}
}

func (s *memoryState) clone() *memoryState {
	out := newMemoryState()
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	out.batchSeq = s.batchSeq
	out.movements = append(out.movements, s.movements...)
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.lines {
		out.lines[k] = append([]POLine(nil), v...)
	}
	out.orderSeq = s.orderSeq
	return out
}

type memoryRepo struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, ok := r.state.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, shared.ErrNotFound
	}
	return po, append([]POLine(nil), r.state.lines[id]...), nil
}

func (r *memoryRepo) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	out := []PurchaseOrder{}
	for _, po := range r.state.orders {
		if status == "" || po.Status == status {
			out = append(out, po)
		}
	}
	return out, nil
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) Ledger() ledger.TxRepository {
	return &memoryLedgerTx{state: t.state}
}

func (t *memoryTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	t.state.orderSeq++
	po.ID = t.state.orderSeq
	t.state.orders[po.ID] = po
	return po.ID, nil
}

func (t *memoryTx) InsertPOLine(ctx context.Context, line POLine) error {
	t.state.lines[line.POID] = append(t.state.lines[line.POID], line)
	return nil
}

func (t *memoryTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := t.state.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.ErrNotFound
	}
	return po, nil
}

func (t *memoryTx) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	po, ok := t.state.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = status
	t.state.orders[id] = po
	return nil
}

func (t *memoryTx) MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time) error {
	po, ok := t.state.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = POStatusDelivered
	po.DeliveredAt = &deliveredAt
	t.state.orders[id] = po
	return nil
}

type memoryLedgerTx struct {
	state *memoryState
}

func (t *memoryLedgerTx) GetProductForUpdate(ctx context.Context, productID int64) (ledger.ProductStock, error) {
	p, ok := t.state.products[productID]
	if !ok {
		return ledger.ProductStock{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memoryLedgerTx) ListBatchesForUpdate(ctx context.Context, productID int64) ([]ledger.PurchaseBatch, error) {
	out := []ledger.PurchaseBatch{}
	for _, b := range t.state.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memoryLedgerTx) InsertBatch(ctx context.Context, batch ledger.PurchaseBatch) (int64, error) {
	t.state.batchSeq++
	batch.ID = t.state.batchSeq
	t.state.batches[batch.ID] = batch
	return batch.ID, nil
}

func (t *memoryLedgerTx) UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error {
	b, ok := t.state.batches[batchID]
	if !ok {
		return shared.ErrNotFound
	}
	b.Remaining = remaining
	t.state.batches[batchID] = b
	return nil
}

func (t *memoryLedgerTx) UpdateProductQuantities(ctx context.Context, productID int64, available decimal.Decimal, stock int64) error {
	p, ok := t.state.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.AvailableQty = available
	p.Stock = stock
	t.state.products[productID] = p
	return nil
}

func (t *memoryLedgerTx) UpdateProductValuation(ctx context.Context, productID int64, v ledger.Valuation) error {
	p, ok := t.state.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.CostPrice = v.CostPrice
	p.UnitCost = v.UnitCost
	t.state.products[productID] = p
	return nil
}

func (t *memoryLedgerTx) InsertMovement(ctx context.Context, m ledger.Movement) error {
	t.state.movements = append(t.state.movements, m)
	return nil
}

type fixedMethod struct {
	method ledger.CostingMethod
}

func (f fixedMethod) ActiveMethod(ctx context.Context) (ledger.CostingMethod, error) {
	return f.method, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedProducts(repo *memoryRepo) {
	repo.state.products[1] = ledger.ProductStock{
		ID: 1, SKU: "RM-FLOUR", StockType: "raw_material", MeasurementValue: dec("500"),
	}
	repo.state.products[2] = ledger.ProductStock{
		ID: 2, SKU: "FG-CAKE", StockType: "finished_good",
	}
}

func newTestService(repo *memoryRepo) *Service {
	engine := ledger.NewService(nil, nil)
	return NewService(repo, engine, fixedMethod{method: ledger.MethodFIFO}, nil, nil)
}

func confirmedOrder(t *testing.T, svc *Service, lines []POLineInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po, err := svc.CreatePO(ctx, CreatePOInput{Lines: lines})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, po.ID))
	require.NoError(t, svc.Confirm(ctx, po.ID))
	return po
}

func TestConfirmDeliveryPostsAllLines(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)

	po := confirmedOrder(t, svc, []POLineInput{
		{ProductID: 1, Qty: dec("2"), UnitCost: dec("10")},
		{ProductID: 2, Qty: dec("5"), UnitCost: dec("90")},
	})

	require.NoError(t, svc.ConfirmDelivery(context.Background(), po.ID))

	// Two packs of 500 base units each.
	flour := repo.state.products[1]
	require.True(t, flour.AvailableQty.Equal(dec("1000")))
	require.Equal(t, int64(2), flour.Stock)
	require.True(t, flour.CostPrice.Equal(dec("10")))
	require.True(t, flour.UnitCost.Equal(dec("0.02")))

	// Counted goods pass through unconverted.
	cake := repo.state.products[2]
	require.True(t, cake.AvailableQty.Equal(dec("5")))

	require.Len(t, repo.state.batches, 2)
	stored := repo.state.orders[po.ID]
	require.Equal(t, POStatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)
}

func TestConfirmDeliveryUnknownProductRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)

	po := confirmedOrder(t, svc, []POLineInput{
		{ProductID: 1, Qty: dec("2"), UnitCost: dec("10")},
		{ProductID: 99, Qty: dec("1"), UnitCost: dec("5")},
	})

	err := svc.ConfirmDelivery(context.Background(), po.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Empty(t, repo.state.batches)
	require.True(t, repo.state.products[1].AvailableQty.IsZero())
	require.Equal(t, POStatusConfirmed, repo.state.orders[po.ID].Status)
}

func TestConfirmDeliveryRequiresConfirmedStatus(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	po, err := svc.CreatePO(ctx, CreatePOInput{Lines: []POLineInput{{ProductID: 1, Qty: dec("1"), UnitCost: dec("10")}}})
	require.NoError(t, err)

	require.ErrorIs(t, svc.ConfirmDelivery(ctx, po.ID), ErrInvalidState)
}

func TestConfirmDeliveryTwiceFailsOnStatus(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	po := confirmedOrder(t, svc, []POLineInput{{ProductID: 1, Qty: dec("1"), UnitCost: dec("10")}})
	require.NoError(t, svc.ConfirmDelivery(ctx, po.ID))
	require.ErrorIs(t, svc.ConfirmDelivery(ctx, po.ID), ErrInvalidState)
	require.Len(t, repo.state.batches, 1)
}

func TestStockInConvertsPacks(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)

	batchID, err := svc.StockIn(context.Background(), StockInInput{ProductID: 1, Qty: dec("3"), UnitCost: dec("12")})
	require.NoError(t, err)

	batch := repo.state.batches[batchID]
	require.True(t, batch.Quantity.Equal(dec("1500")))
	require.True(t, batch.Remaining.Equal(dec("1500")))
	require.True(t, repo.state.products[1].AvailableQty.Equal(dec("1500")))
	require.Equal(t, int64(3), repo.state.products[1].Stock)
}

func TestCreatePORejectsEmptyLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreatePO(context.Background(), CreatePOInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelDeliveredOrderRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedProducts(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	po := confirmedOrder(t, svc, []POLineInput{{ProductID: 1, Qty: dec("1"), UnitCost: dec("10")}})
	require.NoError(t, svc.ConfirmDelivery(ctx, po.ID))
	require.ErrorIs(t, svc.Cancel(ctx, po.ID), ErrInvalidState)
}
