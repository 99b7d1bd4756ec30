package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

// ProductStock is the slice of a product the engine reads and writes: the
// measurement setup plus the derived fields it owns.
type ProductStock struct {
	ID               int64
	SKU              string
	StockType        string
	MeasurementValue decimal.Decimal
	AvailableQty     decimal.Decimal
	Stock            int64
	CostPrice        decimal.Decimal
	UnitCost         decimal.Decimal
}

// Measured reports whether pack count derives from base units.
func (p ProductStock) Measured() bool {
	return p.StockType == stockTypeRawMaterial && p.MeasurementValue.GreaterThan(decimal.Zero)
}

const stockTypeRawMaterial = "raw_material"

// MovementRef identifies the business document behind a ledger mutation.
type MovementRef struct {
	Module string
	RefID  string
	Note   string
}

// Movement is one audit-trail row: a receipt into or a draw from a batch.
type Movement struct {
	ID        int64
	BatchID   int64
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Kind      string
	RefModule string
	RefID     string
	Note      string
	PostedAt  time.Time
}

const (
	// MovementIn marks a receipt.
	MovementIn = "IN"
	// MovementOut marks a consumption.
	MovementOut = "OUT"
)

// RepositoryPort abstracts persistence for the engine service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBatches(ctx context.Context, productID int64) ([]PurchaseBatch, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// TxRepository exposes the operations available inside one ledger transaction.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error)
	ListBatchesForUpdate(ctx context.Context, productID int64) ([]PurchaseBatch, error)
	InsertBatch(ctx context.Context, batch PurchaseBatch) (int64, error)
	UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error
	UpdateProductQuantities(ctx context.Context, productID int64, available decimal.Decimal, stock int64) error
	UpdateProductValuation(ctx context.Context, productID int64, v Valuation) error
	InsertMovement(ctx context.Context, m Movement) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the deduction engine plus purchase valuation and quantity sync.
// Every public operation runs in a single serializable transaction; nothing
// outside this service mutates batch remainders or the derived product fields.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Deduct consumes baseUnits of the product under the given costing method.
// Zero quantity is a successful no-op. The deduction is all-or-nothing.
func (s *Service) Deduct(ctx context.Context, productID int64, baseUnits decimal.Decimal, method CostingMethod, ref MovementRef) (DeductionResult, error) {
	var result DeductionResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.DeductTx(ctx, tx, productID, baseUnits, method, ref)
		return err
	})
	if err != nil {
		return DeductionResult{}, err
	}
	s.recordAudit(ctx, "LEDGER_DEDUCT", productID, map[string]any{
		"qty":    baseUnits.String(),
		"cost":   result.CostConsumed.String(),
		"method": method.String(),
		"ref":    ref.RefID,
	})
	return result, nil
}

// DeductTx is Deduct running inside a caller-owned transaction. The
// production workflow uses it to deduct several raw materials atomically.
func (s *Service) DeductTx(ctx context.Context, tx TxRepository, productID int64, baseUnits decimal.Decimal, method CostingMethod, ref MovementRef) (DeductionResult, error) {
	if productID == 0 {
		return DeductionResult{}, ErrProductRequired
	}
	if baseUnits.IsNegative() {
		return DeductionResult{}, ErrInvalidQuantity
	}
	if !method.IsValid() {
		return DeductionResult{}, ErrUnknownMethod
	}
	if err := validateRef(ref); err != nil {
		return DeductionResult{}, err
	}
	if baseUnits.IsZero() {
		return DeductionResult{ProductID: productID, UnitsConsumed: decimal.Zero, CostConsumed: decimal.Zero}, nil
	}

	product, err := tx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return DeductionResult{}, err
	}
	batches, err := tx.ListBatchesForUpdate(ctx, productID)
	if err != nil {
		return DeductionResult{}, err
	}

	result, err := planDeduction(method, productID, baseUnits, batches)
	if err != nil {
		return DeductionResult{}, err
	}

	now := time.Now().UTC()
	for _, lot := range result.LotsTouched {
		if err := tx.UpdateBatchRemaining(ctx, lot.BatchID, lot.Remaining); err != nil {
			return DeductionResult{}, err
		}
		movement := Movement{
			BatchID:   lot.BatchID,
			ProductID: productID,
			Qty:       lot.Consumed.Neg(),
			UnitCost:  lot.UnitCost,
			Kind:      MovementOut,
			RefModule: ref.Module,
			RefID:     ref.RefID,
			Note:      ref.Note,
			PostedAt:  now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return DeductionResult{}, err
		}
	}

	if err := s.syncTx(ctx, tx, product, applyPlan(batches, result)); err != nil {
		return DeductionResult{}, err
	}
	return result, nil
}

// AppendBatch adds a received lot, revalues the product under the active
// method and refreshes its derived quantities, all in one transaction.
func (s *Service) AppendBatch(ctx context.Context, input AppendInput, method CostingMethod) (int64, error) {
	var batchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		batchID, err = s.AppendBatchTx(ctx, tx, input, method)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "LEDGER_APPEND", input.ProductID, map[string]any{
		"qty":    input.Quantity.String(),
		"cost":   input.UnitCost.String(),
		"method": method.String(),
		"ref":    input.BatchRef,
	})
	return batchID, nil
}

// AppendBatchTx is AppendBatch inside a caller-owned transaction, used by
// delivery confirmation to post all purchase-order lines atomically.
func (s *Service) AppendBatchTx(ctx context.Context, tx TxRepository, input AppendInput, method CostingMethod) (int64, error) {
	if input.ProductID == 0 {
		return 0, ErrProductRequired
	}
	if input.Quantity.LessThanOrEqual(decimal.Zero) {
		return 0, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return 0, ErrInvalidUnitCost
	}
	if !method.IsValid() {
		return 0, ErrUnknownMethod
	}
	if err := validateRef(MovementRef{RefID: input.RefID}); err != nil {
		return 0, err
	}

	product, err := tx.GetProductForUpdate(ctx, input.ProductID)
	if err != nil {
		return 0, err
	}
	batches, err := tx.ListBatchesForUpdate(ctx, input.ProductID)
	if err != nil {
		return 0, err
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	batch := PurchaseBatch{
		ProductID:       input.ProductID,
		Quantity:        input.Quantity,
		Remaining:       input.Quantity,
		CostPrice:       input.UnitCost,
		ReceivedAt:      receivedAt,
		PurchaseOrderID: input.PurchaseOrderID,
		BatchRef:        input.BatchRef,
	}
	batchID, err := tx.InsertBatch(ctx, batch)
	if err != nil {
		return 0, err
	}
	batch.ID = batchID
	batches = append(batches, batch)

	source := input.Source
	if source == "" {
		source = "PROCUREMENT"
	}
	movement := Movement{
		BatchID:   batchID,
		ProductID: input.ProductID,
		Qty:       input.Quantity,
		UnitCost:  input.UnitCost,
		Kind:      MovementIn,
		RefModule: source,
		RefID:     input.RefID,
		Note:      input.BatchRef,
		PostedAt:  receivedAt,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return 0, err
	}

	if err := s.revalueTx(ctx, tx, product, batches, method); err != nil {
		return 0, err
	}
	if err := s.syncTx(ctx, tx, product, batches); err != nil {
		return 0, err
	}
	return batchID, nil
}

// Availability returns the total open base units for a product.
func (s *Service) Availability(ctx context.Context, productID int64) (decimal.Decimal, error) {
	if productID == 0 {
		return decimal.Zero, ErrProductRequired
	}
	batches, err := s.repo.ListBatches(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return totalRemaining(batches), nil
}

// ListBatches exposes the product's lot history, newest last.
func (s *Service) ListBatches(ctx context.Context, productID int64) ([]PurchaseBatch, error) {
	if productID == 0 {
		return nil, ErrProductRequired
	}
	return s.repo.ListBatches(ctx, productID)
}

// ListMovements exposes the audit trail for a product.
func (s *Service) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if productID == 0 {
		return nil, ErrProductRequired
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// Resync recomputes the derived quantity fields from the batch set. The
// integrity job uses it to repair drift; normal operations never need it.
func (s *Service) Resync(ctx context.Context, productID int64) error {
	if productID == 0 {
		return ErrProductRequired
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		batches, err := tx.ListBatchesForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		return s.syncTx(ctx, tx, product, batches)
	})
}

// revalueTx rewrites the product's costPrice/unitCost from the batch set.
func (s *Service) revalueTx(ctx context.Context, tx TxRepository, product ProductStock, batches []PurchaseBatch, method CostingMethod) error {
	costPrice := valueProduct(method, batches)
	valuation := Valuation{
		CostPrice: costPrice,
		UnitCost:  derivedUnitCost(costPrice, product.MeasurementValue),
	}
	return tx.UpdateProductValuation(ctx, product.ID, valuation)
}

// syncTx recomputes availableQuantities and the pack count from the
// (already mutated) batch set. For unmeasured goods the pack is the base
// unit, so the count is just the floored available quantity.
func (s *Service) syncTx(ctx context.Context, tx TxRepository, product ProductStock, batches []PurchaseBatch) error {
	available := totalRemaining(batches)
	unit := decimal.NewFromInt(1)
	if product.Measured() {
		unit = product.MeasurementValue
	}
	stock := derivedPackCount(available, unit)
	return tx.UpdateProductQuantities(ctx, product.ID, available, stock)
}

func (s *Service) recordAudit(ctx context.Context, action string, productID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "ledger",
		EntityID: fmt.Sprintf("%d", productID),
		Meta:     meta,
	})
}

// applyPlan returns the batch set with the plan's decrements applied, for
// recomputing derived quantities without a re-read.
func applyPlan(batches []PurchaseBatch, result DeductionResult) []PurchaseBatch {
	remaining := make(map[int64]decimal.Decimal, len(result.LotsTouched))
	for _, lot := range result.LotsTouched {
		remaining[lot.BatchID] = lot.Remaining
	}
	out := make([]PurchaseBatch, len(batches))
	copy(out, batches)
	for i := range out {
		if r, ok := remaining[out[i].ID]; ok {
			out[i].Remaining = r
		}
	}
	return out
}

func validateRef(ref MovementRef) error {
	if ref.RefID == "" {
		return nil
	}
	if _, err := uuid.Parse(ref.RefID); err != nil {
		return fmt.Errorf("ledger: invalid ref id: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is the shared not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
