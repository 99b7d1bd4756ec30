package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// orderForConsumption returns the open batches in the order the engine will
// draw them down. FIFO and WAC rotate physical stock oldest-first; LIFO
// consumes the newest lot first. Ties on ReceivedAt break by insertion order.
func orderForConsumption(method CostingMethod, batches []PurchaseBatch) []PurchaseBatch {
	open := make([]PurchaseBatch, 0, len(batches))
	for _, b := range batches {
		if b.Open() {
			open = append(open, b)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		if method == MethodLIFO {
			if !open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
				return open[i].ReceivedAt.After(open[j].ReceivedAt)
			}
			return open[i].ID > open[j].ID
		}
		if !open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
			return open[i].ReceivedAt.Before(open[j].ReceivedAt)
		}
		return open[i].ID < open[j].ID
	})
	return open
}

// totalRemaining sums the open quantity across batches.
func totalRemaining(batches []PurchaseBatch) decimal.Decimal {
	total := decimal.Zero
	for _, b := range batches {
		if b.Open() {
			total = total.Add(b.Remaining)
		}
	}
	return total
}

// weightedAverageUnitCost computes sum(remaining*cost)/sum(remaining) over the
// open batches. Zero when nothing is open.
func weightedAverageUnitCost(batches []PurchaseBatch) decimal.Decimal {
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	for _, b := range batches {
		if !b.Open() {
			continue
		}
		totalQty = totalQty.Add(b.Remaining)
		totalCost = totalCost.Add(b.Remaining.Mul(b.CostPrice))
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(totalQty)
}

// planDeduction resolves which batches a deduction will draw from and what it
// costs, without mutating anything. The plan is all-or-nothing: a shortfall
// returns InsufficientStockError and no consumptions.
func planDeduction(method CostingMethod, productID int64, required decimal.Decimal, batches []PurchaseBatch) (DeductionResult, error) {
	result := DeductionResult{ProductID: productID, UnitsConsumed: decimal.Zero, CostConsumed: decimal.Zero}
	if required.IsNegative() {
		return result, ErrInvalidQuantity
	}
	if required.IsZero() {
		return result, nil
	}
	if !method.IsValid() {
		return result, ErrUnknownMethod
	}

	available := totalRemaining(batches)
	if available.LessThan(required) {
		return result, &InsufficientStockError{ProductID: productID, Requested: required, Available: available}
	}

	// WAC values the whole deduction at the average cost of the batch set as
	// it stood before the deduction.
	var wacUnit decimal.Decimal
	if method == MethodWAC {
		wacUnit = weightedAverageUnitCost(batches)
	}

	outstanding := required
	for _, b := range orderForConsumption(method, batches) {
		if outstanding.IsZero() {
			break
		}
		take := decimal.Min(outstanding, b.Remaining)
		consumption := LotConsumption{
			BatchID:   b.ID,
			Consumed:  take,
			Remaining: b.Remaining.Sub(take),
			UnitCost:  b.CostPrice,
		}
		result.LotsTouched = append(result.LotsTouched, consumption)
		result.UnitsConsumed = result.UnitsConsumed.Add(take)
		if method != MethodWAC {
			result.CostConsumed = result.CostConsumed.Add(take.Mul(b.CostPrice))
		}
		outstanding = outstanding.Sub(take)
	}

	if method == MethodWAC {
		result.CostConsumed = required.Mul(wacUnit)
	}
	return result, nil
}

// valueProduct derives the product-level costPrice from the open batch set
// under the active method. The newest lot should already be in batches when
// revaluing after a receipt.
func valueProduct(method CostingMethod, batches []PurchaseBatch) decimal.Decimal {
	open := orderForConsumption(MethodFIFO, batches)
	if len(open) == 0 {
		return decimal.Zero
	}
	switch method {
	case MethodFIFO:
		return open[0].CostPrice
	case MethodLIFO:
		return open[len(open)-1].CostPrice
	default:
		return weightedAverageUnitCost(batches)
	}
}

// derivedUnitCost computes costPrice/measurementValue for measured goods.
func derivedUnitCost(costPrice, measurementValue decimal.Decimal) decimal.Decimal {
	if measurementValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return costPrice.Div(measurementValue)
}

// derivedPackCount computes floor(available/measurementValue).
func derivedPackCount(available, measurementValue decimal.Decimal) int64 {
	if measurementValue.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return available.Div(measurementValue).Floor().IntPart()
}
