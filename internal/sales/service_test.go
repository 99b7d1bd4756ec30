package sales

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
	sales     map[int64]Sale
	lines     map[int64][]SaleLine
	saleSeq   int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		products: make(map[int64]ledger.ProductStock),
		batches:  make(map[int64]ledger.PurchaseBatch),
		sales:    make(map[int64]Sale),
		lines:    make(map[int64][]SaleLine),
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
	for k, v := range s.sales {
		out.sales[k] = v
	}
	for k, v := range s.lines {
		out.lines[k] = append([]SaleLine(nil), v...)
	}
	out.saleSeq = s.saleSeq
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

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	sale, ok := r.state.sales[id]
	if !ok {
		return Sale{}, nil, shared.ErrNotFound
	}
	return sale, append([]SaleLine(nil), r.state.lines[id]...), nil
}

func (r *memoryRepo) ListSales(ctx context.Context, status SaleStatus, limit int) ([]Sale, error) {
	out := []Sale{}
	for _, sale := range r.state.sales {
		if status == "" || sale.Status == status {
			out = append(out, sale)
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

func (t *memoryTx) CreateSale(ctx context.Context, sale Sale) (int64, error) {
	t.state.saleSeq++
	sale.ID = t.state.saleSeq
	t.state.sales[sale.ID] = sale
	return sale.ID, nil
}

func (t *memoryTx) InsertSaleLine(ctx context.Context, line SaleLine) error {
	t.state.lines[line.SaleID] = append(t.state.lines[line.SaleID], line)
	return nil
}

func (t *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, ok := t.state.sales[id]
	if !ok {
		return Sale{}, shared.ErrNotFound
	}
	return sale, nil
}

func (t *memoryTx) UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) error {
	sale, ok := t.state.sales[id]
	if !ok {
		return shared.ErrNotFound
	}
	sale.Status = status
	t.state.sales[id] = sale
	return nil
}

func (t *memoryTx) MarkFulfilled(ctx context.Context, id int64, cogs decimal.Decimal, fulfilledAt time.Time) error {
	sale, ok := t.state.sales[id]
	if !ok {
		return shared.ErrNotFound
	}
	sale.Status = SaleStatusFulfilled
	sale.COGS = cogs
	sale.FulfilledAt = &fulfilledAt
	t.state.sales[id] = sale
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

// seedShelf stocks flour as a measured raw material (500 g packs, one lot of
// 1000 g at 10/g) and cakes as a counted finished good (20 at 90 each).
func seedShelf(repo *memoryRepo) {
	repo.state.products[1] = ledger.ProductStock{
		ID: 1, SKU: "RM-FLOUR", StockType: "raw_material", MeasurementValue: dec("500"),
		AvailableQty: dec("1000"), Stock: 2, CostPrice: dec("10"), UnitCost: dec("0.02"),
	}
	repo.state.products[2] = ledger.ProductStock{
		ID: 2, SKU: "FG-CAKE", StockType: "finished_good",
		AvailableQty: dec("20"), Stock: 20, CostPrice: dec("90"), UnitCost: dec("90"),
	}
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo.state.batches[1] = ledger.PurchaseBatch{
		ID: 1, ProductID: 1, Quantity: dec("1000"), Remaining: dec("1000"), CostPrice: dec("10"), ReceivedAt: base,
	}
	repo.state.batches[2] = ledger.PurchaseBatch{
		ID: 2, ProductID: 2, Quantity: dec("20"), Remaining: dec("20"), CostPrice: dec("90"), ReceivedAt: base,
	}
	repo.state.batchSeq = 2
}

func newTestService(repo *memoryRepo) *Service {
	engine := ledger.NewService(nil, nil)
	return NewService(repo, engine, fixedMethod{method: ledger.MethodFIFO}, nil)
}

func draftSale(t *testing.T, svc *Service, lines []SaleLineInput) Sale {
	t.Helper()
	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{Lines: lines})
	require.NoError(t, err)
	return sale
}

func TestFulfillDeductsAllLinesAndRecordsCOGS(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)

	sale := draftSale(t, svc, []SaleLineInput{
		{ProductID: 1, Qty: dec("1"), Price: dec("25")},
		{ProductID: 2, Qty: dec("5"), Price: dec("120")},
	})

	cogs, err := svc.Fulfill(context.Background(), sale.ID)
	require.NoError(t, err)

	// One 500 g pack at 10/g plus five cakes at 90.
	require.True(t, cogs.Equal(dec("5450")), "cogs = %s", cogs)

	flour := repo.state.products[1]
	require.True(t, flour.AvailableQty.Equal(dec("500")))
	require.Equal(t, int64(1), flour.Stock)
	require.True(t, repo.state.batches[1].Remaining.Equal(dec("500")))

	cake := repo.state.products[2]
	require.True(t, cake.AvailableQty.Equal(dec("15")))
	require.Equal(t, int64(15), cake.Stock)

	stored := repo.state.sales[sale.ID]
	require.Equal(t, SaleStatusFulfilled, stored.Status)
	require.True(t, stored.COGS.Equal(dec("5450")))
	require.NotNil(t, stored.FulfilledAt)
}

func TestFulfillMovementsCarrySalesRef(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)

	sale := draftSale(t, svc, []SaleLineInput{{ProductID: 2, Qty: dec("3"), Price: dec("120")}})
	_, err := svc.Fulfill(context.Background(), sale.ID)
	require.NoError(t, err)

	require.Len(t, repo.state.movements, 1)
	movement := repo.state.movements[0]
	require.Equal(t, ledger.MovementOut, movement.Kind)
	require.Equal(t, "SALES", movement.RefModule)
	require.True(t, movement.Qty.Equal(dec("-3")))
}

func TestFulfillInsufficientLineRollsBackEverything(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)

	// Cake line deducts fine first; the flour line then overdraws.
	sale := draftSale(t, svc, []SaleLineInput{
		{ProductID: 2, Qty: dec("5"), Price: dec("120")},
		{ProductID: 1, Qty: dec("10"), Price: dec("25")},
	})

	_, err := svc.Fulfill(context.Background(), sale.ID)
	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(1), insufficient.ProductID)
	require.True(t, insufficient.Requested.Equal(dec("5000")))
	require.True(t, insufficient.Available.Equal(dec("1000")))

	require.True(t, repo.state.products[2].AvailableQty.Equal(dec("20")))
	require.True(t, repo.state.batches[2].Remaining.Equal(dec("20")))
	require.Equal(t, SaleStatusDraft, repo.state.sales[sale.ID].Status)
	require.Empty(t, repo.state.movements)
}

func TestFulfillTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	sale := draftSale(t, svc, []SaleLineInput{{ProductID: 2, Qty: dec("1"), Price: dec("120")}})
	_, err := svc.Fulfill(ctx, sale.ID)
	require.NoError(t, err)

	_, err = svc.Fulfill(ctx, sale.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.True(t, repo.state.products[2].AvailableQty.Equal(dec("19")))
}

func TestCancelFulfilledSaleRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	sale := draftSale(t, svc, []SaleLineInput{{ProductID: 2, Qty: dec("1"), Price: dec("120")}})
	_, err := svc.Fulfill(ctx, sale.ID)
	require.NoError(t, err)

	require.ErrorIs(t, svc.Cancel(ctx, sale.ID), ErrInvalidState)
}

func TestCancelDraftSale(t *testing.T) {
	repo := newMemoryRepo()
	seedShelf(repo)
	svc := newTestService(repo)
	ctx := context.Background()

	sale := draftSale(t, svc, []SaleLineInput{{ProductID: 2, Qty: dec("1"), Price: dec("120")}})
	require.NoError(t, svc.Cancel(ctx, sale.ID))
	require.Equal(t, SaleStatusCancelled, repo.state.sales[sale.ID].Status)
}

func TestCreateSaleRejectsEmptyLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}
