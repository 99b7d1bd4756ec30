// Package procurement covers purchase orders and the delivery confirmation
// that feeds received lots into the batch ledger.
package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSubmitted POStatus = "SUBMITTED"
	POStatusConfirmed POStatus = "CONFIRMED"
	POStatusDelivered POStatus = "DELIVERED"
	POStatusCancelled POStatus = "CANCELLED"
)

// ErrInvalidState rejects a transition the current status does not allow.
var ErrInvalidState = errors.New("procurement: order state does not allow this transition")

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64
	Number       string
	SupplierID   int64
	Status       POStatus
	ExpectedDate time.Time
	Note         string
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}

// POLine is one ordered product. Qty counts packs for measured raw materials
// and units otherwise; UnitCost is the lot cost recorded on the batch.
type POLine struct {
	ID        int64
	POID      int64
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Note      string
}
