package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/platform/db"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
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

const poColumns = `id, number, COALESCE(supplier_id, 0), status, expected_date, COALESCE(note, ''), created_at, delivered_at`

// GetPO returns purchase order and lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanPO(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, po_id, product_id, qty, unit_cost, COALESCE(note, '') FROM purchase_order_lines WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()

	lines := []POLine{}
	for rows.Next() {
		var line POLine
		var qty, cost string
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &qty, &cost, &line.Note); err != nil {
			return PurchaseOrder{}, nil, err
		}
		if line.Qty, err = decimal.NewFromString(qty); err != nil {
			return PurchaseOrder{}, nil, err
		}
		if line.UnitCost, err = decimal.NewFromString(cost); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

// ListPOs returns orders newest first, optionally filtered by status.
func (r *Repository) ListPOs(ctx context.Context, status POStatus, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + poColumns + ` FROM purchase_orders`
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

	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, supplier_id, status, expected_date, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		po.Number, nullInt(po.SupplierID), string(po.Status), po.ExpectedDate, po.Note).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_order_lines (po_id, product_id, qty, unit_cost, note) VALUES ($1, $2, $3, $4, $5)`,
		line.POID, line.ProductID, line.Qty.String(), line.UnitCost.String(), line.Note)
	return err
}

func (t *txRepo) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
	return scanPO(row)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) MarkDelivered(ctx context.Context, id int64, deliveredAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, delivered_at = $3 WHERE id = $1`,
		id, string(POStatusDelivered), deliveredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &po.ExpectedDate, &po.Note, &po.CreatedAt, &po.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
