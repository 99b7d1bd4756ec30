// Package sales records sales orders and fulfils them by consuming stock
// through the batch ledger.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Sale lifecycle statuses.
type SaleStatus string

const (
	SaleStatusDraft     SaleStatus = "DRAFT"
	SaleStatusFulfilled SaleStatus = "FULFILLED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// ErrInvalidState rejects a transition the current status does not allow.
var ErrInvalidState = errors.New("sales: order state does not allow this transition")

// Sale domain model. COGS is filled at fulfilment from what the ledger
// actually consumed.
type Sale struct {
	ID          int64
	Number      string
	CustomerRef string
	Status      SaleStatus
	COGS        decimal.Decimal
	Note        string
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

// SaleLine is one sold product. Qty counts packs for measured raw materials
// and units otherwise.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Qty       decimal.Decimal
	Price     decimal.Decimal
}
