package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidMargin rejects margins at or above 100 percent, which have no
// defined selling price.
var ErrInvalidMargin = errors.New("catalog: margin must be below 100")

// ErrUnknownPricingMethod rejects unrecognised pricing methods.
var ErrUnknownPricingMethod = errors.New("catalog: unknown pricing method")

var hundred = decimal.NewFromInt(100)

// DerivePrice computes a selling price from cost under the product's pricing
// method, rounded to two decimal places. Fixed pricing, and any method the
// deriver does not recognise, returns the stored price untouched.
func DerivePrice(method string, cost, markupPercent, marginPercent, fixedPrice decimal.Decimal) (decimal.Decimal, error) {
	switch method {
	case PricingMarkup:
		factor := hundred.Add(markupPercent).Div(hundred)
		return cost.Mul(factor).Round(2), nil
	case PricingMargin:
		if marginPercent.GreaterThanOrEqual(hundred) {
			return decimal.Zero, ErrInvalidMargin
		}
		denom := hundred.Sub(marginPercent).Div(hundred)
		return cost.Div(denom).Round(2), nil
	default:
		return fixedPrice, nil
	}
}

// PriceFor returns the product's selling price for a given unit cost. A
// pricing override pins the stored price regardless of method.
func PriceFor(p Product, cost decimal.Decimal) (decimal.Decimal, error) {
	if p.PricingOverride {
		return p.Price, nil
	}
	return DerivePrice(p.PricingMethod, cost, p.MarkupPercent, p.MarginPercent, p.Price)
}
