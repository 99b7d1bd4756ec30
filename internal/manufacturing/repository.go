package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/catalog"
	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/platform/db"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the workflow.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

// WithTx runs fn inside one serializable transaction shared with the ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
}

func (t *txRepo) Ledger() ledger.TxRepository {
	return t.ledger
}

const orderColumns = `id, number, product_id, quantity, status, total_cost, cost_per_unit, COALESCE(note, ''), created_at, completed_at`

// GetOrder returns one manufacturing order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (ManufacturingOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE id = $1`, id)
	return scanOrder(row)
}

// ListOrders returns orders newest first, optionally filtered by status.
func (r *Repository) ListOrders(ctx context.Context, status OrderStatus, limit int) ([]ManufacturingOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM manufacturing_orders`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []ManufacturingOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// GetBOMByProduct loads the bill of materials with its lines.
func (r *Repository) GetBOMByProduct(ctx context.Context, productID int64) (BOM, error) {
	return getBOMByProduct(ctx, r.pool, productID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getBOMByProduct(ctx context.Context, q querier, productID int64) (BOM, error) {
	var bom BOM
	err := q.QueryRow(ctx, `SELECT id, product_id, COALESCE(name, ''), created_at FROM boms WHERE product_id = $1`, productID).
		Scan(&bom.ID, &bom.ProductID, &bom.Name, &bom.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, shared.ErrNotFound
		}
		return BOM{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, bom_id, material_id, quantity FROM bom_lines WHERE bom_id = $1 ORDER BY id`, bom.ID)
	if err != nil {
		return BOM{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line BOMLine
		var qty string
		if err := rows.Scan(&line.ID, &line.BOMID, &line.MaterialID, &qty); err != nil {
			return BOM{}, err
		}
		if line.Quantity, err = decimal.NewFromString(qty); err != nil {
			return BOM{}, err
		}
		bom.Lines = append(bom.Lines, line)
	}
	return bom, rows.Err()
}

// GetBOMByProduct reads the bill of materials through the transaction so a
// completion works off the snapshot it will deduct against.
func (t *txRepo) GetBOMByProduct(ctx context.Context, productID int64) (BOM, error) {
	return getBOMByProduct(ctx, t.tx, productID)
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (ManufacturingOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (t *txRepo) CreateOrder(ctx context.Context, order ManufacturingOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO manufacturing_orders (number, product_id, quantity, status, total_cost, cost_per_unit, note, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, NOW()) RETURNING id`,
		order.Number, order.ProductID, order.Quantity, string(order.Status), order.Note).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE manufacturing_orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) CompleteOrder(ctx context.Context, id int64, totalCost, costPerUnit decimal.Decimal, completedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE manufacturing_orders SET status = $2, total_cost = $3, cost_per_unit = $4, completed_at = $5
		WHERE id = $1`,
		id, string(StatusCompleted), totalCost.String(), costPerUnit.String(), completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateBOM(ctx context.Context, bom BOM) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO boms (product_id, name, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		bom.ProductID, bom.Name).Scan(&id)
	return id, err
}

func (t *txRepo) InsertBOMLine(ctx context.Context, line BOMLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO bom_lines (bom_id, material_id, quantity) VALUES ($1, $2, $3)`,
		line.BOMID, line.MaterialID, line.Quantity.String())
	return err
}

// GetProductPricing reads the pricing columns the completion needs, locked
// for the rest of the transaction.
func (t *txRepo) GetProductPricing(ctx context.Context, productID int64) (catalog.Product, error) {
	var p catalog.Product
	var mv, markup, margin, price string
	err := t.tx.QueryRow(ctx, `
		SELECT id, sku, stock_type, measurement_value, COALESCE(pricing_method, ''), markup_percent, margin_percent, price, pricing_override
		FROM products WHERE id = $1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.SKU, &p.StockType, &mv, &p.PricingMethod, &markup, &margin, &price, &p.PricingOverride)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, shared.ErrNotFound
		}
		return catalog.Product{}, err
	}
	if p.MeasurementValue, err = decimal.NewFromString(mv); err != nil {
		return catalog.Product{}, err
	}
	if p.MarkupPercent, err = decimal.NewFromString(markup); err != nil {
		return catalog.Product{}, err
	}
	if p.MarginPercent, err = decimal.NewFromString(margin); err != nil {
		return catalog.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

// UpdateSellingPrice writes the finished good's derived selling price. The
// produced units themselves land through the ledger, which also refreshes
// the stock counts.
func (t *txRepo) UpdateSellingPrice(ctx context.Context, productID int64, price decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE products SET price = $2, updated_at = NOW() WHERE id = $1`,
		productID, price.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (ManufacturingOrder, error) {
	var order ManufacturingOrder
	var status string
	var totalCost, costPerUnit string
	err := row.Scan(&order.ID, &order.Number, &order.ProductID, &order.Quantity, &status,
		&totalCost, &costPerUnit, &order.Note, &order.CreatedAt, &order.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ManufacturingOrder{}, shared.ErrNotFound
		}
		return ManufacturingOrder{}, err
	}
	order.Status = OrderStatus(status)
	if order.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
		return ManufacturingOrder{}, err
	}
	if order.CostPerUnit, err = decimal.NewFromString(costPerUnit); err != nil {
		return ManufacturingOrder{}, err
	}
	return order, nil
}
