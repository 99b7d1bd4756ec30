package sales

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
	GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error)
	ListSales(ctx context.Context, status SaleStatus, limit int) ([]Sale, error)
}

// TxRepository exposes transactional operations sharing the ledger's
// transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	CreateSale(ctx context.Context, sale Sale) (int64, error)
	InsertSaleLine(ctx context.Context, line SaleLine) error
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) error
	MarkFulfilled(ctx context.Context, id int64, cogs decimal.Decimal, fulfilledAt time.Time) error
}

// MethodSource supplies the costing method in force.
type MethodSource interface {
	ActiveMethod(ctx context.Context) (ledger.CostingMethod, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records sales and draws their stock from the ledger.
type Service struct {
	repo    RepositoryPort
	engine  *ledger.Service
	methods MethodSource
	audit   AuditPort
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, engine *ledger.Service, methods MethodSource, audit AuditPort) *Service {
	return &Service{repo: repo, engine: engine, methods: methods, audit: audit}
}

// SaleLineInput describes one sold product.
type SaleLineInput struct {
	ProductID int64
	Qty       decimal.Decimal
	Price     decimal.Decimal
}

// CreateSaleInput describes a new sale.
type CreateSaleInput struct {
	Number      string
	CustomerRef string
	Note        string
	Lines       []SaleLineInput
}

// CreateSale persists a draft sale with its lines.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if len(input.Lines) == 0 {
		return Sale{}, fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = fmt.Sprintf("SO-%d", time.Now().UnixNano())
	}
	sale := Sale{
		Number:      input.Number,
		CustomerRef: input.CustomerRef,
		Status:      SaleStatusDraft,
		COGS:        decimal.Zero,
		Note:        input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.CreateSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID
		for _, line := range input.Lines {
			if line.ProductID == 0 || line.Qty.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("%w: lines need a product and positive qty", shared.ErrValidation)
			}
			if err := tx.InsertSaleLine(ctx, SaleLine{SaleID: saleID, ProductID: line.ProductID, Qty: line.Qty, Price: line.Price}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, "SALE_CREATE", sale.ID, map[string]any{"number": sale.Number})
	return sale, nil
}

// Fulfill consumes every line's stock in one transaction and records the
// cost of goods sold from what the engine actually drew. Insufficient stock
// on any line aborts the whole sale untouched.
func (s *Service) Fulfill(ctx context.Context, saleID int64) (decimal.Decimal, error) {
	_, lines, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return decimal.Zero, err
	}

	method, err := s.methods.ActiveMethod(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	cogs := decimal.Zero
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusDraft {
			return ErrInvalidState
		}
		for _, line := range lines {
			baseUnits, err := toBaseUnits(ctx, tx.Ledger(), line.ProductID, line.Qty)
			if err != nil {
				return err
			}
			ref := ledger.MovementRef{
				Module: "SALES",
				RefID:  fulfilmentRef(saleID, line.ProductID),
				Note:   fmt.Sprintf("SO %s", sale.Number),
			}
			consumed, err := s.engine.DeductTx(ctx, tx.Ledger(), line.ProductID, baseUnits, method, ref)
			if err != nil {
				return err
			}
			cogs = cogs.Add(consumed.CostConsumed)
		}
		return tx.MarkFulfilled(ctx, saleID, cogs, time.Now().UTC())
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.recordAudit(ctx, "SALE_FULFILL", saleID, map[string]any{"cogs": cogs.String()})
	return cogs, nil
}

// Cancel abandons a draft sale.
func (s *Service) Cancel(ctx context.Context, saleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != SaleStatusDraft {
			return ErrInvalidState
		}
		return tx.UpdateSaleStatus(ctx, saleID, SaleStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "SALE_CANCEL", saleID, nil)
	return nil
}

// GetSale returns the sale with its lines.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales returns sales, optionally filtered by status.
func (s *Service) ListSales(ctx context.Context, status SaleStatus, limit int) ([]Sale, error) {
	return s.repo.ListSales(ctx, status, limit)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "sales",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

// toBaseUnits converts pack quantities into ledger base units for measured
// raw materials.
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

func fulfilmentRef(saleID, productID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("SO:%d:%d", saleID, productID))).String()
}
