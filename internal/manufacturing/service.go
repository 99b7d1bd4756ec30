package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/catalog"
	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (ManufacturingOrder, error)
	ListOrders(ctx context.Context, status OrderStatus, limit int) ([]ManufacturingOrder, error)
	GetBOMByProduct(ctx context.Context, productID int64) (BOM, error)
}

// TxRepository exposes the operations available inside one workflow
// transaction. Ledger returns a ledger view over the same transaction so a
// completion spans every material atomically.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetOrderForUpdate(ctx context.Context, id int64) (ManufacturingOrder, error)
	CreateOrder(ctx context.Context, order ManufacturingOrder) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	CompleteOrder(ctx context.Context, id int64, totalCost, costPerUnit decimal.Decimal, completedAt time.Time) error
	CreateBOM(ctx context.Context, bom BOM) (int64, error)
	InsertBOMLine(ctx context.Context, line BOMLine) error
	GetProductPricing(ctx context.Context, productID int64) (catalog.Product, error)
	GetBOMByProduct(ctx context.Context, productID int64) (BOM, error)
	UpdateSellingPrice(ctx context.Context, productID int64, price decimal.Decimal) error
}

// MethodSource supplies the costing method in force.
type MethodSource interface {
	ActiveMethod(ctx context.Context) (ledger.CostingMethod, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the production workflow.
type Service struct {
	repo        RepositoryPort
	engine      *ledger.Service
	methods     MethodSource
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs manufacturing service.
func NewService(repo RepositoryPort, engine *ledger.Service, methods MethodSource, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, engine: engine, methods: methods, audit: audit, idempotency: idem}
}

// BOMLineInput describes one material requirement.
type BOMLineInput struct {
	MaterialID int64
	Quantity   decimal.Decimal
}

// CreateBOMInput describes a new bill of materials.
type CreateBOMInput struct {
	ProductID int64
	Name      string
	Lines     []BOMLineInput
}

// CreateOrderInput describes a new manufacturing order.
type CreateOrderInput struct {
	Number    string
	ProductID int64
	Quantity  int64
	Note      string
}

// CreateBOM persists a bill of materials for a finished good.
func (s *Service) CreateBOM(ctx context.Context, input CreateBOMInput) (BOM, error) {
	if input.ProductID == 0 {
		return BOM{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return BOM{}, fmt.Errorf("%w: minimal 1 line", shared.ErrValidation)
	}
	bom := BOM{ProductID: input.ProductID, Name: strings.TrimSpace(input.Name)}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductPricing(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.StockType != catalog.StockTypeFinishedGood {
			return fmt.Errorf("%w: bill of materials requires a finished good", shared.ErrValidation)
		}
		bomID, err := tx.CreateBOM(ctx, bom)
		if err != nil {
			return err
		}
		bom.ID = bomID
		for _, line := range input.Lines {
			if line.MaterialID == 0 || line.Quantity.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("%w: material lines need a positive quantity", shared.ErrValidation)
			}
			bomLine := BOMLine{BOMID: bomID, MaterialID: line.MaterialID, Quantity: line.Quantity}
			if err := tx.InsertBOMLine(ctx, bomLine); err != nil {
				return err
			}
			bom.Lines = append(bom.Lines, bomLine)
		}
		return nil
	})
	if err != nil {
		return BOM{}, err
	}
	s.recordAudit(ctx, "BOM_CREATE", bom.ID, map[string]any{"product_id": input.ProductID, "lines": len(bom.Lines)})
	return bom, nil
}

// CreateOrder opens a pending manufacturing order. The product must be a
// finished good with a bill of materials.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (ManufacturingOrder, error) {
	if input.ProductID == 0 {
		return ManufacturingOrder{}, fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return ManufacturingOrder{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("MO")
	}
	if _, err := s.repo.GetBOMByProduct(ctx, input.ProductID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ManufacturingOrder{}, ErrMissingBOM
		}
		return ManufacturingOrder{}, err
	}

	order := ManufacturingOrder{
		Number:      input.Number,
		ProductID:   input.ProductID,
		Quantity:    input.Quantity,
		Status:      StatusPending,
		TotalCost:   decimal.Zero,
		CostPerUnit: decimal.Zero,
		Note:        input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductPricing(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.StockType != catalog.StockTypeFinishedGood {
			return fmt.Errorf("%w: only finished goods are manufactured", shared.ErrValidation)
		}
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return ManufacturingOrder{}, err
	}
	s.recordAudit(ctx, "MO_CREATE", order.ID, map[string]any{"number": order.Number, "qty": order.Quantity})
	return order, nil
}

// Start moves a pending order into progress.
func (s *Service) Start(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, StatusPending, StatusInProgress, "MO_START")
}

// Cancel abandons a pending order. Started orders cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	return s.transition(ctx, orderID, StatusPending, StatusCancelled, "MO_CANCEL")
}

func (s *Service) transition(ctx context.Context, orderID int64, from, to OrderStatus, action string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != from {
			return ErrInvalidState
		}
		return tx.UpdateOrderStatus(ctx, orderID, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, action, orderID, nil)
	return nil
}

// Complete runs the production completion workflow: every bill-of-materials
// line is deducted from the batch ledger in one transaction, the finished
// good is received at the run's actual cost and its selling price is derived
// from the product's pricing method. Any failure rolls everything back.
func (s *Service) Complete(ctx context.Context, orderID int64) (CompletionResult, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return CompletionResult{}, err
	}

	method, err := s.methods.ActiveMethod(ctx)
	if err != nil {
		return CompletionResult{}, err
	}

	key := fmt.Sprintf("MO:%s", order.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "manufacturing.complete"); err != nil {
			return CompletionResult{}, err
		}
		inserted = true
	}

	var result CompletionResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case StatusInProgress:
		case StatusCompleted:
			return ErrAlreadyCompleted
		default:
			return ErrInvalidState
		}

		bom, err := tx.GetBOMByProduct(ctx, order.ProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ErrMissingBOM
			}
			return err
		}
		if len(bom.Lines) == 0 {
			return ErrMissingBOM
		}

		producedUnits := decimal.NewFromInt(order.Quantity)
		totalCost := decimal.Zero
		materials := make([]MaterialConsumption, 0, len(bom.Lines))
		for _, line := range bom.Lines {
			required := line.Quantity.Mul(producedUnits)
			ref := ledger.MovementRef{
				Module: "MANUFACTURING",
				RefID:  completionRef(order.ID, line.MaterialID),
				Note:   fmt.Sprintf("MO %s", order.Number),
			}
			consumed, err := s.engine.DeductTx(ctx, tx.Ledger(), line.MaterialID, required, method, ref)
			if err != nil {
				return err
			}
			totalCost = totalCost.Add(consumed.CostConsumed)
			materials = append(materials, MaterialConsumption{
				MaterialID: line.MaterialID,
				Units:      consumed.UnitsConsumed,
				Cost:       consumed.CostConsumed,
			})
		}

		costPerUnit := totalCost.Div(producedUnits)

		product, err := tx.GetProductPricing(ctx, order.ProductID)
		if err != nil {
			return err
		}
		price, err := catalog.PriceFor(product, costPerUnit)
		if err != nil {
			return err
		}

		// Receive the finished units as a lot of their own so later sales
		// deduct through the same ledger.
		_, err = s.engine.AppendBatchTx(ctx, tx.Ledger(), ledger.AppendInput{
			ProductID: order.ProductID,
			Quantity:  producedUnits,
			UnitCost:  costPerUnit,
			BatchRef:  order.Number,
			Source:    "MANUFACTURING",
			RefID:     completionRef(order.ID, order.ProductID),
		}, method)
		if err != nil {
			return err
		}

		// The finished good is valued at this run's actual cost, whatever
		// the method said about its historic lots. The per-base-unit cost
		// only exists for measured goods.
		unitCost := decimal.Zero
		if product.MeasurementValue.GreaterThan(decimal.Zero) {
			unitCost = costPerUnit.Div(product.MeasurementValue)
		}
		if err := tx.Ledger().UpdateProductValuation(ctx, order.ProductID, ledger.Valuation{
			CostPrice: costPerUnit,
			UnitCost:  unitCost,
		}); err != nil {
			return err
		}
		if err := tx.UpdateSellingPrice(ctx, order.ProductID, price); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.CompleteOrder(ctx, orderID, totalCost, costPerUnit, now); err != nil {
			return err
		}

		result = CompletionResult{
			OrderID:     orderID,
			TotalCost:   totalCost,
			CostPerUnit: costPerUnit,
			Price:       price,
			Materials:   materials,
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return CompletionResult{}, err
	}

	s.recordAudit(ctx, "MO_COMPLETE", orderID, map[string]any{
		"number":        order.Number,
		"total_cost":    result.TotalCost.String(),
		"cost_per_unit": result.CostPerUnit.String(),
	})
	return result, nil
}

// GetOrder returns one order.
func (s *Service) GetOrder(ctx context.Context, id int64) (ManufacturingOrder, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders, optionally filtered by status.
func (s *Service) ListOrders(ctx context.Context, status OrderStatus, limit int) ([]ManufacturingOrder, error) {
	return s.repo.ListOrders(ctx, status, limit)
}

// GetBOM returns the bill of materials for a product.
func (s *Service) GetBOM(ctx context.Context, productID int64) (BOM, error) {
	return s.repo.GetBOMByProduct(ctx, productID)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "manufacturing",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

// completionRef derives a stable uuid for one material draw so retried
// completions reference the same movement.
func completionRef(orderID, productID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("MO:%d:%d", orderID, productID))).String()
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
