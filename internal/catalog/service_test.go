package catalog

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	out := []Product{}
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) Create(ctx context.Context, product Product) (Product, error) {
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, product Product) error {
	if _, ok := r.products[id]; !ok {
		return shared.ErrNotFound
	}
	product.ID = id
	r.products[id] = product
	return nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id int64) error {
	p, ok := r.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = false
	r.products[id] = p
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rawMaterialForm() ProductForm {
	return ProductForm{
		SKU:              "RM-FLOUR",
		Name:             "Flour",
		StockType:        StockTypeRawMaterial,
		MeasurementType:  "weight",
		MeasurementValue: dec("500"),
		IsActive:         true,
	}
}

func TestCreateRequiresMeasurementForRawMaterial(t *testing.T) {
	svc := NewService(newMemoryRepo())

	form := rawMaterialForm()
	form.MeasurementValue = decimal.Zero
	_, err := svc.Create(context.Background(), form)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateAcceptsNonInventoryStockTypes(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	for _, st := range []string{StockTypeAssetEquipment, StockTypeConsumable} {
		form := ProductForm{SKU: "SUP-" + st, Name: "Supply", StockType: st, IsActive: true}
		created, err := svc.Create(ctx, form)
		require.NoError(t, err)
		require.Equal(t, st, created.StockType)
		require.False(t, created.Measured())
	}

	form := ProductForm{SKU: "X-1", Name: "X", StockType: "scrap"}
	_, err := svc.Create(ctx, form)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRejectsUnknownPricingMethod(t *testing.T) {
	svc := NewService(newMemoryRepo())

	form := rawMaterialForm()
	form.PricingMethod = "auction"
	_, err := svc.Create(context.Background(), form)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateCannotTouchDerivedFields(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, rawMaterialForm())
	require.NoError(t, err)

	// The engine wrote stock figures out of band.
	p := repo.products[created.ID]
	p.AvailableQty = dec("1200")
	p.Stock = 2
	p.CostPrice = dec("10")
	p.UnitCost = dec("0.02")
	repo.products[created.ID] = p

	form := rawMaterialForm()
	form.Name = "Bread Flour"
	updated, err := svc.Update(ctx, created.ID, form)
	require.NoError(t, err)

	require.Equal(t, "Bread Flour", updated.Name)
	require.True(t, updated.AvailableQty.Equal(dec("1200")))
	require.Equal(t, int64(2), updated.Stock)
	require.True(t, updated.CostPrice.Equal(dec("10")))
	require.True(t, updated.UnitCost.Equal(dec("0.02")))
}

func TestDerivePriceMarkup(t *testing.T) {
	price, err := DerivePrice(PricingMarkup, dec("80"), dec("25"), decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.True(t, price.Equal(dec("100")))
}

func TestDerivePriceMargin(t *testing.T) {
	price, err := DerivePrice(PricingMargin, dec("80"), decimal.Zero, dec("20"), decimal.Zero)
	require.NoError(t, err)
	require.True(t, price.Equal(dec("100")))
}

func TestDerivePriceMarginRounds(t *testing.T) {
	price, err := DerivePrice(PricingMargin, dec("10"), decimal.Zero, dec("33"), decimal.Zero)
	require.NoError(t, err)
	require.True(t, price.Equal(dec("14.93"))) // 10 / 0.67
}

func TestDerivePriceRejectsFullMargin(t *testing.T) {
	_, err := DerivePrice(PricingMargin, dec("80"), decimal.Zero, dec("100"), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidMargin)
}

func TestDerivePriceKeepsStoredPriceForUnknownMethod(t *testing.T) {
	for _, method := range []string{"", PricingFixed, "legacy"} {
		price, err := DerivePrice(method, dec("80"), decimal.Zero, decimal.Zero, dec("42"))
		require.NoError(t, err)
		require.True(t, price.Equal(dec("42")))
	}
}

func TestPriceForHonoursOverride(t *testing.T) {
	p := Product{
		PricingMethod:   PricingMarkup,
		MarkupPercent:   dec("50"),
		Price:           dec("42"),
		PricingOverride: true,
	}
	price, err := PriceFor(p, dec("80"))
	require.NoError(t, err)
	require.True(t, price.Equal(dec("42")))
}
