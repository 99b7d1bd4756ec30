// Package manufacturing runs the production workflow: bills of materials,
// manufacturing orders and the completion step that consumes raw materials
// through the batch ledger.
package manufacturing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/catalog"
)

// Manufacturing order lifecycle statuses.
type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusInProgress OrderStatus = "IN_PROGRESS"
	StatusCompleted  OrderStatus = "COMPLETED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

var (
	// ErrInvalidState rejects a transition the current status does not allow.
	ErrInvalidState = errors.New("manufacturing: order state does not allow this transition")
	// ErrAlreadyCompleted rejects completing a completed order again.
	ErrAlreadyCompleted = errors.New("manufacturing: order already completed")
	// ErrMissingBOM indicates the product has no bill of materials configured.
	ErrMissingBOM = errors.New("manufacturing: product has no bill of materials")
	// ErrInvalidMargin mirrors the catalog pricing rule for callers of this package.
	ErrInvalidMargin = catalog.ErrInvalidMargin
)

// BOM is a bill of materials for one finished good.
type BOM struct {
	ID        int64
	ProductID int64
	Name      string
	Lines     []BOMLine
	CreatedAt time.Time
}

// BOMLine states how many base units of a raw material go into one finished
// unit.
type BOMLine struct {
	ID         int64
	BOMID      int64
	MaterialID int64
	Quantity   decimal.Decimal
}

// ManufacturingOrder is a request to produce Quantity units of a finished good.
type ManufacturingOrder struct {
	ID          int64
	Number      string
	ProductID   int64
	Quantity    int64
	Status      OrderStatus
	TotalCost   decimal.Decimal
	CostPerUnit decimal.Decimal
	Note        string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// MaterialConsumption reports what one completion drew per raw material.
type MaterialConsumption struct {
	MaterialID int64
	Units      decimal.Decimal
	Cost       decimal.Decimal
}

// CompletionResult summarises a finished production run.
type CompletionResult struct {
	OrderID     int64
	TotalCost   decimal.Decimal
	CostPerUnit decimal.Decimal
	Price       decimal.Decimal
	Materials   []MaterialConsumption
}
