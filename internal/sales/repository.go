package sales

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

const saleColumns = `id, number, COALESCE(customer_ref, ''), status, cogs, COALESCE(note, ''), created_at, fulfilled_at`

// GetSale returns the sale and its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		return Sale{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty, price FROM sale_lines WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	defer rows.Close()

	lines := []SaleLine{}
	for rows.Next() {
		var line SaleLine
		var qty, price string
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &qty, &price); err != nil {
			return Sale{}, nil, err
		}
		if line.Qty, err = decimal.NewFromString(qty); err != nil {
			return Sale{}, nil, err
		}
		if line.Price, err = decimal.NewFromString(price); err != nil {
			return Sale{}, nil, err
		}
		lines = append(lines, line)
	}
	return sale, lines, rows.Err()
}

// ListSales returns sales newest first, optionally filtered by status.
func (r *Repository) ListSales(ctx context.Context, status SaleStatus, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + saleColumns + ` FROM sales`
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

	sales := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (t *txRepo) CreateSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (number, customer_ref, status, cogs, note, created_at)
		VALUES ($1, $2, $3, 0, $4, NOW()) RETURNING id`,
		sale.Number, sale.CustomerRef, string(sale.Status), sale.Note).Scan(&id)
	return id, err
}

func (t *txRepo) InsertSaleLine(ctx context.Context, line SaleLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, price) VALUES ($1, $2, $3, $4)`,
		line.SaleID, line.ProductID, line.Qty.String(), line.Price.String())
	return err
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
	return scanSale(row)
}

func (t *txRepo) UpdateSaleStatus(ctx context.Context, id int64, status SaleStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) MarkFulfilled(ctx context.Context, id int64, cogs decimal.Decimal, fulfilledAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2, cogs = $3, fulfilled_at = $4 WHERE id = $1`,
		id, string(SaleStatusFulfilled), cogs.String(), fulfilledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var sale Sale
	var status, cogs string
	err := row.Scan(&sale.ID, &sale.Number, &sale.CustomerRef, &status, &cogs, &sale.Note, &sale.CreatedAt, &sale.FulfilledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	sale.Status = SaleStatus(status)
	if sale.COGS, err = decimal.NewFromString(cogs); err != nil {
		return Sale{}, err
	}
	return sale, nil
}
