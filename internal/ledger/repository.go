package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/platform/db"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// Repository persists the batch ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already open transaction so other modules can
// compose ledger writes into their own unit of work.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx runs fn inside a serializable transaction. Serialization failures
// and deadlocks surface as db.ErrTxConflict so callers can retry instead of
// misreading contention as missing stock.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListBatches returns all lots for a product, oldest first.
func (r *Repository) ListBatches(ctx context.Context, productID int64) ([]PurchaseBatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, quantity, remaining, cost_price, received_at, COALESCE(purchase_order_id, 0), COALESCE(batch_ref, ''), created_at
FROM purchase_batches WHERE product_id=$1 ORDER BY received_at ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

// ListMovements returns the audit trail for a product, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, product_id, qty, unit_cost, kind, ref_module, COALESCE(ref_id::text, ''), note, posted_at
FROM stock_movements WHERE product_id=$1 ORDER BY posted_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var qty, cost string
		if err := rows.Scan(&m.ID, &m.BatchID, &m.ProductID, &qty, &cost, &m.Kind, &m.RefModule, &m.RefID, &m.Note, &m.PostedAt); err != nil {
			return nil, err
		}
		if m.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if m.UnitCost, err = decimal.NewFromString(cost); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (ProductStock, error) {
	var p ProductStock
	var measurement, available, costPrice, unitCost string
	err := r.tx.QueryRow(ctx, `SELECT id, sku, stock_type, measurement_value, available_qty, stock, cost_price, unit_cost
FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.SKU, &p.StockType, &measurement, &available, &p.Stock, &costPrice, &unitCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductStock{}, shared.ErrNotFound
		}
		return ProductStock{}, err
	}
	if p.MeasurementValue, err = decimal.NewFromString(measurement); err != nil {
		return ProductStock{}, err
	}
	if p.AvailableQty, err = decimal.NewFromString(available); err != nil {
		return ProductStock{}, err
	}
	if p.CostPrice, err = decimal.NewFromString(costPrice); err != nil {
		return ProductStock{}, err
	}
	if p.UnitCost, err = decimal.NewFromString(unitCost); err != nil {
		return ProductStock{}, err
	}
	return p, nil
}

func (r *txRepository) ListBatchesForUpdate(ctx context.Context, productID int64) ([]PurchaseBatch, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, quantity, remaining, cost_price, received_at, COALESCE(purchase_order_id, 0), COALESCE(batch_ref, ''), created_at
FROM purchase_batches WHERE product_id=$1 ORDER BY received_at ASC, id ASC FOR UPDATE`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *txRepository) InsertBatch(ctx context.Context, batch PurchaseBatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_batches (product_id, quantity, remaining, cost_price, received_at, purchase_order_id, batch_ref, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		batch.ProductID, batch.Quantity.String(), batch.Remaining.String(), batch.CostPrice.String(),
		batch.ReceivedAt, nullInt(batch.PurchaseOrderID), nullString(batch.BatchRef)).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateBatchRemaining(ctx context.Context, batchID int64, remaining decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_batches SET remaining=$2 WHERE id=$1 AND remaining >= $2`, batchID, remaining.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("ledger: batch remaining would increase or batch missing")
	}
	return nil
}

func (r *txRepository) UpdateProductQuantities(ctx context.Context, productID int64, available decimal.Decimal, stock int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET available_qty=$2, stock=$3, updated_at=NOW() WHERE id=$1`,
		productID, available.String(), stock)
	return err
}

func (r *txRepository) UpdateProductValuation(ctx context.Context, productID int64, v Valuation) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET cost_price=$2, unit_cost=$3, updated_at=NOW() WHERE id=$1`,
		productID, v.CostPrice.String(), v.UnitCost.String())
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (batch_id, product_id, qty, unit_cost, kind, ref_module, ref_id, note, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.BatchID, m.ProductID, m.Qty.String(), m.UnitCost.String(), m.Kind, m.RefModule, nullString(m.RefID), m.Note, m.PostedAt)
	return err
}

func scanBatches(rows pgx.Rows) ([]PurchaseBatch, error) {
	batches := []PurchaseBatch{}
	for rows.Next() {
		var b PurchaseBatch
		var qty, remaining, cost string
		if err := rows.Scan(&b.ID, &b.ProductID, &qty, &remaining, &cost, &b.ReceivedAt, &b.PurchaseOrderID, &b.BatchRef, &b.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if b.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		if b.Remaining, err = decimal.NewFromString(remaining); err != nil {
			return nil, err
		}
		if b.CostPrice, err = decimal.NewFromString(cost); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
