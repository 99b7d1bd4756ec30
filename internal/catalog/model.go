// Package catalog manages the product master records the valuation engine
// operates on.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock types.
const (
	StockTypeRawMaterial    = "raw_material"
	StockTypeFinishedGood   = "finished_good"
	StockTypeAssetEquipment = "asset_equipment"
	StockTypeConsumable     = "consumable"
)

// Pricing methods for finished goods.
const (
	PricingMarkup = "markup"
	PricingMargin = "margin"
	PricingFixed  = "fixed"
)

// Product represents a product entity. AvailableQty, Stock, CostPrice and
// UnitCost are owned by the ledger; catalog reads them but never writes them.
type Product struct {
	ID               int64           `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	StockType        string          `json:"stock_type"`
	MeasurementType  string          `json:"measurement_type"`
	MeasurementValue decimal.Decimal `json:"measurement_value"`
	AvailableQty     decimal.Decimal `json:"available_quantities"`
	Stock            int64           `json:"stock"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	PricingMethod    string          `json:"pricing_method"`
	MarkupPercent    decimal.Decimal `json:"markup_percent"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	Price            decimal.Decimal `json:"price"`
	PricingOverride  bool            `json:"pricing_override"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Measured reports whether the product tracks base units per pack.
func (p Product) Measured() bool {
	return p.StockType == StockTypeRawMaterial && p.MeasurementValue.GreaterThan(decimal.Zero)
}

// ListFilters narrows product listings.
type ListFilters struct {
	Page      int
	Limit     int
	Search    string
	StockType string
	SortBy    string
	SortDir   string
	IsActive  *bool
}
