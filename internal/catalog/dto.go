package catalog

import "github.com/shopspring/decimal"

// ProductForm carries the writable product fields. The quantity and cost
// fields derived by the ledger are deliberately absent.
type ProductForm struct {
	SKU              string          `json:"sku" validate:"required"`
	Name             string          `json:"name" validate:"required"`
	StockType        string          `json:"stock_type" validate:"required,oneof=raw_material finished_good asset_equipment consumable"`
	MeasurementType  string          `json:"measurement_type"`
	MeasurementValue decimal.Decimal `json:"measurement_value"`
	PricingMethod    string          `json:"pricing_method" validate:"omitempty,oneof=markup margin fixed"`
	MarkupPercent    decimal.Decimal `json:"markup_percent"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	Price            decimal.Decimal `json:"price"`
	PricingOverride  bool            `json:"pricing_override"`
	IsActive         bool            `json:"is_active"`
}
