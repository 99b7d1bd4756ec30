package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CostingMethod selects how consumed stock is ordered and valued.
type CostingMethod string

const (
	// MethodFIFO consumes and values the oldest lots first.
	MethodFIFO CostingMethod = "fifo"
	// MethodLIFO consumes and values the newest lots first.
	MethodLIFO CostingMethod = "lifo"
	// MethodWAC values consumption at the weighted average unit cost.
	// Physical stock still rotates oldest-first.
	MethodWAC CostingMethod = "wac"
)

// IsValid reports whether the method is one of fifo/lifo/wac.
func (m CostingMethod) IsValid() bool {
	switch m {
	case MethodFIFO, MethodLIFO, MethodWAC:
		return true
	}
	return false
}

func (m CostingMethod) String() string {
	return string(m)
}

// PurchaseBatch is one received lot of a product. Quantity is fixed at
// receipt; only Remaining is drawn down, and only by the deduction engine.
type PurchaseBatch struct {
	ID              int64
	ProductID       int64
	Quantity        decimal.Decimal
	Remaining       decimal.Decimal
	CostPrice       decimal.Decimal
	ReceivedAt      time.Time
	PurchaseOrderID int64
	BatchRef        string
	CreatedAt       time.Time
}

// Open reports whether the batch still has stock to consume.
func (b PurchaseBatch) Open() bool {
	return b.Remaining.GreaterThan(decimal.Zero)
}

// AppendInput describes a lot to add to the ledger. Source names the module
// posting the receipt; empty means procurement.
type AppendInput struct {
	ProductID       int64
	Quantity        decimal.Decimal
	UnitCost        decimal.Decimal
	ReceivedAt      time.Time
	PurchaseOrderID int64
	BatchRef        string
	Source          string
	RefID           string
}

// LotConsumption records how much was drawn from one batch.
type LotConsumption struct {
	BatchID   int64
	Consumed  decimal.Decimal
	Remaining decimal.Decimal
	UnitCost  decimal.Decimal
}

// DeductionResult summarises a completed deduction.
type DeductionResult struct {
	ProductID     int64
	UnitsConsumed decimal.Decimal
	CostConsumed  decimal.Decimal
	LotsTouched   []LotConsumption
}

// Valuation carries the derived cost fields written back to a product.
type Valuation struct {
	CostPrice decimal.Decimal
	UnitCost  decimal.Decimal
}

// InsufficientStockError reports that a product's open batches cannot cover
// the requested quantity. The ledger is left untouched when it is returned.
type InsufficientStockError struct {
	ProductID int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d: requested %s, available %s",
		e.ProductID, e.Requested.String(), e.Available.String())
}

// ErrInvalidQuantity indicates a negative or malformed quantity from the caller.
var ErrInvalidQuantity = errors.New("ledger: quantity must not be negative")

// ErrInvalidUnitCost indicates a negative unit cost.
var ErrInvalidUnitCost = errors.New("ledger: unit cost must be >= 0")

// ErrUnknownMethod indicates a costing method outside fifo/lifo/wac.
var ErrUnknownMethod = errors.New("ledger: unknown costing method")

// ErrProductRequired indicates a missing product reference.
var ErrProductRequired = errors.New("ledger: product required")
