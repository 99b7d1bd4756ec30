package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error)
}

// TxRepository exposes transactional operations. Ledger shares the same
// transaction so a delivery posts every line atomically.
type TxRepository interface {
	Ledger() ledger.TxRepository
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time) error
}

// MethodSource supplies the costing method in force.
type MethodSource interface {
	ActiveMethod(ctx context.Context) (ledger.CostingMethod, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase intake.
type Service struct {
	repo        RepositoryPort
	engine      *ledger.Service
	methods     MethodSource
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, engine *ledger.Service, methods MethodSource, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, engine: engine, methods: methods, audit: audit, idempotency: idem}
}

// POLineInput describes one ordered product.
type POLineInput struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Note      string
}

// CreatePOInput describes a new purchase order.
type CreatePOInput struct {
	Number       string
	SupplierID   int64
	ExpectedDate time.Time
	Note         string
	Lines        []POLineInput
}

// StockInInput describes a direct receipt without a purchase order.
type StockInInput struct {
	ProductID int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	BatchRef  string
}

// CreatePO persists the order header and lines as a draft.
func (s *Service) CreatePO(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		Status:       POStatusDraft,
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			if line.ProductID == 0 || line.Qty.LessThanOrEqual(decimal.Zero) || line.UnitCost.IsNegative() {
				return fmt.Errorf("%w: lines need a product, positive qty and non-negative cost", shared.ErrValidation)
			}
			if err := tx.InsertPOLine(ctx, POLine{POID: poID, ProductID: line.ProductID, Qty: line.Qty, UnitCost: line.UnitCost, Note: line.Note}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number, "lines": len(input.Lines)})
	return po, nil
}

// Submit moves a draft order to submitted.
func (s *Service) Submit(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, POStatusDraft, POStatusSubmitted, "PO_SUBMIT")
}

// Confirm acknowledges the supplier accepted the order.
func (s *Service) Confirm(ctx context.Context, poID int64) error {
	return s.transition(ctx, poID, POStatusSubmitted, POStatusConfirmed, "PO_CONFIRM")
}

// Cancel abandons an order that has not been delivered.
func (s *Service) Cancel(ctx context.Context, poID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		switch po.Status {
		case POStatusDraft, POStatusSubmitted, POStatusConfirmed:
			return tx.UpdatePOStatus(ctx, poID, POStatusCancelled)
		default:
			return ErrInvalidState
		}
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_CANCEL", poID, nil)
	return nil
}

func (s *Service) transition(ctx context.Context, poID int64, from, to POStatus, action string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != from {
			return ErrInvalidState
		}
		return tx.UpdatePOStatus(ctx, poID, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, action, poID, nil)
	return nil
}

// ConfirmDelivery receives a confirmed order: every line becomes a ledger
// batch in one transaction, with pack quantities converted to base units
// through the product's measurement value. The product is revalued per line
// under the active costing method.
func (s *Service) ConfirmDelivery(ctx context.Context, poID int64) error {
	po, lines, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusConfirmed {
		return ErrInvalidState
	}

	method, err := s.methods.ActiveMethod(ctx)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("PO:%s", po.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.delivery"); err != nil {
			return err
		}
		inserted = true
	}

	receivedAt := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusConfirmed {
			return ErrInvalidState
		}
		for _, line := range lines {
			baseUnits, err := s.toBaseUnits(ctx, tx.Ledger(), line.ProductID, line.Qty)
			if err != nil {
				return err
			}
			_, err = s.engine.AppendBatchTx(ctx, tx.Ledger(), ledger.AppendInput{
				ProductID:       line.ProductID,
				Quantity:        baseUnits,
				UnitCost:        line.UnitCost,
				ReceivedAt:      receivedAt,
				PurchaseOrderID: po.ID,
				BatchRef:        po.Number,
				RefID:           deliveryRef(po.ID, line.ProductID),
			}, method)
			if err != nil {
				return err
			}
		}
		return tx.MarkDelivered(ctx, poID, receivedAt)
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}

	s.recordAudit(ctx, "PO_DELIVER", poID, map[string]any{"number": po.Number, "lines": len(lines)})
	return nil
}

// StockIn receives goods without a purchase order.
func (s *Service) StockIn(ctx context.Context, input StockInInput) (int64, error) {
	if input.ProductID == 0 {
		return 0, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Qty.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.BatchRef == "" {
		input.BatchRef = generateNumber("SIN")
	}

	method, err := s.methods.ActiveMethod(ctx)
	if err != nil {
		return 0, err
	}

	var batchID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		baseUnits, err := s.toBaseUnits(ctx, tx.Ledger(), input.ProductID, input.Qty)
		if err != nil {
			return err
		}
		batchID, err = s.engine.AppendBatchTx(ctx, tx.Ledger(), ledger.AppendInput{
			ProductID: input.ProductID,
			Quantity:  baseUnits,
			UnitCost:  input.UnitCost,
			BatchRef:  input.BatchRef,
		}, method)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, "STOCK_IN", batchID, map[string]any{"product_id": input.ProductID, "qty": input.Qty.String()})
	return batchID, nil
}

// GetPO returns the order with its lines.
func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs returns orders, optionally filtered by status.
func (s *Service) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, status, limit)
}

// toBaseUnits converts a pack quantity into ledger base units for measured
// raw materials; counted goods pass through unchanged.
func (s *Service) toBaseUnits(ctx context.Context, lTx ledger.TxRepository, productID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	product, err := lTx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if product.Measured() {
		return qty.Mul(product.MeasurementValue), nil
	}
	return qty, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "procurement",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

// deliveryRef derives a stable uuid per order line so a retried delivery
// references the same movement.
func deliveryRef(poID, productID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d:%d", poID, productID))).String()
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
