// Package requisitions issues stock to internal departments through the
// batch ledger.
package requisitions

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Requisition lifecycle statuses.
type ReqStatus string

const (
	ReqStatusDraft     ReqStatus = "DRAFT"
	ReqStatusIssued    ReqStatus = "ISSUED"
	ReqStatusCancelled ReqStatus = "CANCELLED"
)

// ErrInvalidState rejects a transition the current status does not allow.
var ErrInvalidState = errors.New("requisitions: state does not allow this transition")

// Requisition is an internal stock request. TotalCost is filled at issue
// from what the ledger actually consumed.
type Requisition struct {
	ID         int64
	Number     string
	Department string
	Status     ReqStatus
	TotalCost  decimal.Decimal
	Note       string
	CreatedAt  time.Time
	IssuedAt   *time.Time
}

// ReqLine is one requested product. Qty counts packs for measured raw
// materials and units otherwise.
type ReqLine struct {
	ID            int64
	RequisitionID int64
	ProductID     int64
	Qty           decimal.Decimal
}
