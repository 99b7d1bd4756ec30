package requisitions

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
	GetRequisition(ctx context.Context, id int64) (Requisition, []ReqLine, error)
	ListRequisitions(ctx context.Context, status ReqStatus, limit int) ([]Requisition, error)
}

// TxRepository exposes transactional operations sharing the ledger's
// transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	CreateRequisition(ctx context.Context, req Requisition) (int64, error)
	InsertReqLine(ctx context.Context, line ReqLine) error
	GetRequisitionForUpdate(ctx context.Context, id int64) (Requisition, error)
	UpdateRequisitionStatus(ctx context.Context, id int64, status ReqStatus) error
	MarkIssued(ctx context.Context, id int64, totalCost decimal.Decimal, issuedAt time.Time) error
}

// MethodSource supplies the costing method in force.
type MethodSource interface {
	ActiveMethod(ctx context.Context) (ledger.CostingMethod, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records requisitions and issues them against the ledger.
type Service struct {
	repo    RepositoryPort
	engine  *ledger.Service
	methods MethodSource
	audit   AuditPort
}

// NewService constructs requisitions service.
func NewService(repo RepositoryPort, engine *ledger.Service, methods MethodSource, audit AuditPort) *Service {
	return &Service{repo: repo, engine: engine, methods: methods, audit: audit}
}

// ReqLineInput describes one requested product.
type ReqLineInput struct {
	ProductID int64
	Qty       decimal.Decimal
}

// CreateInput describes a new requisition.
type CreateInput struct {
	Number     string
	Department string
	Note       string
	Lines      []ReqLineInput
}

// Create persists a draft requisition with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requisition, error) {
	if len(input.Lines) == 0 {
		return Requisition{}, fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = fmt.Sprintf("RQ-%d", time.Now().UnixNano())
	}
	req := Requisition{
		Number:     input.Number,
		Department: input.Department,
		Status:     ReqStatusDraft,
		TotalCost:  decimal.Zero,
		Note:       input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		reqID, err := tx.CreateRequisition(ctx, req)
		if err != nil {
			return err
		}
		req.ID = reqID
		for _, line := range input.Lines {
			if line.ProductID == 0 || line.Qty.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("%w: lines need a product and positive qty", shared.ErrValidation)
			}
			if err := tx.InsertReqLine(ctx, ReqLine{RequisitionID: reqID, ProductID: line.ProductID, Qty: line.Qty}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, "REQUISITION_CREATE", req.ID, map[string]any{"number": req.Number})
	return req, nil
}

// Issue consumes every line's stock in one transaction. Insufficient stock
// on any line aborts the whole issue untouched.
func (s *Service) Issue(ctx context.Context, reqID int64) (decimal.Decimal, error) {
	_, lines, err := s.repo.GetRequisition(ctx, reqID)
	if err != nil {
		return decimal.Zero, err
	}

	method, err := s.methods.ActiveMethod(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequisitionForUpdate(ctx, reqID)
		if err != nil {
			return err
		}
		if req.Status != ReqStatusDraft {
			return ErrInvalidState
		}
		for _, line := range lines {
			baseUnits, err := toBaseUnits(ctx, tx.Ledger(), line.ProductID, line.Qty)
			if err != nil {
				return err
			}
			ref := ledger.MovementRef{
				Module: "REQUISITIONS",
				RefID:  issueRef(reqID, line.ProductID),
				Note:   fmt.Sprintf("RQ %s", req.Number),
			}
			consumed, err := s.engine.DeductTx(ctx, tx.Ledger(), line.ProductID, baseUnits, method, ref)
			if err != nil {
				return err
			}
			total = total.Add(consumed.CostConsumed)
		}
		return tx.MarkIssued(ctx, reqID, total, time.Now().UTC())
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.recordAudit(ctx, "REQUISITION_ISSUE", reqID, map[string]any{"cost": total.String()})
	return total, nil
}

// Cancel abandons a draft requisition.
func (s *Service) Cancel(ctx context.Context, reqID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequisitionForUpdate(ctx, reqID)
		if err != nil {
			return err
		}
		if req.Status != ReqStatusDraft {
			return ErrInvalidState
		}
		return tx.UpdateRequisitionStatus(ctx, reqID, ReqStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "REQUISITION_CANCEL", reqID, nil)
	return nil
}

// GetRequisition returns the requisition with its lines.
func (s *Service) GetRequisition(ctx context.Context, id int64) (Requisition, []ReqLine, error) {
	return s.repo.GetRequisition(ctx, id)
}

// ListRequisitions returns requisitions, optionally filtered by status.
func (s *Service) ListRequisitions(ctx context.Context, status ReqStatus, limit int) ([]Requisition, error) {
	return s.repo.ListRequisitions(ctx, status, limit)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "requisitions",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func toBaseUnits(ctx context.Context, lTx ledger.TxRepository, productID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	product, err := lTx.GetProductForUpdate(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if product.Measured() {
		return qty.Mul(product.MeasurementValue), nil
	}
	return qty, nil
}

func issueRef(reqID, productID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("RQ:%d:%d", reqID, productID))).String()
}
