package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func twoBatches() []PurchaseBatch {
	t1 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	return []PurchaseBatch{
		{ID: 1, ProductID: 7, Quantity: dec("5"), Remaining: dec("5"), CostPrice: dec("10"), ReceivedAt: t1},
		{ID: 2, ProductID: 7, Quantity: dec("5"), Remaining: dec("5"), CostPrice: dec("20"), ReceivedAt: t2},
	}
}

func TestPlanDeductionFIFO(t *testing.T) {
	result, err := planDeduction(MethodFIFO, 7, dec("7"), twoBatches())
	require.NoError(t, err)
	require.True(t, result.CostConsumed.Equal(dec("90")), "got %s", result.CostConsumed)
	require.Len(t, result.LotsTouched, 2)
	require.Equal(t, int64(1), result.LotsTouched[0].BatchID)
	require.True(t, result.LotsTouched[0].Consumed.Equal(dec("5")))
	require.True(t, result.LotsTouched[0].Remaining.IsZero())
	require.Equal(t, int64(2), result.LotsTouched[1].BatchID)
	require.True(t, result.LotsTouched[1].Consumed.Equal(dec("2")))
	require.True(t, result.LotsTouched[1].Remaining.Equal(dec("3")))
}

func TestPlanDeductionLIFO(t *testing.T) {
	result, err := planDeduction(MethodLIFO, 7, dec("7"), twoBatches())
	require.NoError(t, err)
	require.True(t, result.CostConsumed.Equal(dec("120")), "got %s", result.CostConsumed)
	require.Equal(t, int64(2), result.LotsTouched[0].BatchID)
	require.True(t, result.LotsTouched[0].Consumed.Equal(dec("5")))
	require.Equal(t, int64(1), result.LotsTouched[1].BatchID)
	require.True(t, result.LotsTouched[1].Consumed.Equal(dec("2")))
}

func TestPlanDeductionWAC(t *testing.T) {
	// Average unit cost before the deduction: (5*10+5*20)/10 = 15.
	result, err := planDeduction(MethodWAC, 7, dec("7"), twoBatches())
	require.NoError(t, err)
	require.True(t, result.CostConsumed.Equal(dec("105")), "got %s", result.CostConsumed)
	// Physical rotation is still oldest-first.
	require.Equal(t, int64(1), result.LotsTouched[0].BatchID)
	require.True(t, result.LotsTouched[0].Consumed.Equal(dec("5")))
}

func TestPlanDeductionInsufficient(t *testing.T) {
	_, err := planDeduction(MethodFIFO, 7, dec("11"), twoBatches())
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Available.Equal(dec("10")))
	require.True(t, insufficient.Requested.Equal(dec("11")))
}

func TestPlanDeductionZeroIsNoop(t *testing.T) {
	result, err := planDeduction(MethodLIFO, 7, decimal.Zero, twoBatches())
	require.NoError(t, err)
	require.Empty(t, result.LotsTouched)
	require.True(t, result.CostConsumed.IsZero())
}

func TestPlanDeductionRejectsNegative(t *testing.T) {
	_, err := planDeduction(MethodFIFO, 7, dec("-1"), twoBatches())
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlanDeductionRejectsUnknownMethod(t *testing.T) {
	_, err := planDeduction(CostingMethod("avg"), 7, dec("1"), twoBatches())
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestPlanDeductionSkipsDrainedLots(t *testing.T) {
	batches := twoBatches()
	batches[0].Remaining = decimal.Zero
	result, err := planDeduction(MethodFIFO, 7, dec("4"), batches)
	require.NoError(t, err)
	require.Len(t, result.LotsTouched, 1)
	require.Equal(t, int64(2), result.LotsTouched[0].BatchID)
	require.True(t, result.CostConsumed.Equal(dec("80")))
}

func TestValueProduct(t *testing.T) {
	batches := twoBatches()
	require.True(t, valueProduct(MethodFIFO, batches).Equal(dec("10")))
	require.True(t, valueProduct(MethodLIFO, batches).Equal(dec("20")))
	require.True(t, valueProduct(MethodWAC, batches).Equal(dec("15")))

	// Once the oldest lot drains, FIFO valuation moves to the next open lot.
	batches[0].Remaining = decimal.Zero
	require.True(t, valueProduct(MethodFIFO, batches).Equal(dec("20")))
	require.True(t, valueProduct(MethodLIFO, batches).Equal(dec("20")))

	require.True(t, valueProduct(MethodWAC, nil).IsZero())
}

func TestDerivedPackCount(t *testing.T) {
	require.Equal(t, int64(2), derivedPackCount(dec("1200"), dec("500")))
	require.Equal(t, int64(0), derivedPackCount(dec("499"), dec("500")))
	require.Equal(t, int64(0), derivedPackCount(dec("1200"), decimal.Zero))
}

func TestDerivedUnitCost(t *testing.T) {
	require.True(t, derivedUnitCost(dec("150"), dec("500")).Equal(dec("0.3")))
	require.True(t, derivedUnitCost(dec("150"), decimal.Zero).IsZero())
}
