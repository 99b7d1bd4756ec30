package requisitions

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

const reqColumns = `id, number, COALESCE(department, ''), status, total_cost, COALESCE(note, ''), created_at, issued_at`

// GetRequisition returns the requisition and its lines.
func (r *Repository) GetRequisition(ctx context.Context, id int64) (Requisition, []ReqLine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reqColumns+` FROM requisitions WHERE id = $1`, id)
	req, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, requisition_id, product_id, qty FROM requisition_lines WHERE requisition_id = $1 ORDER BY id`, id)
	if err != nil {
		return Requisition{}, nil, err
	}
	defer rows.Close()

	lines := []ReqLine{}
	for rows.Next() {
		var line ReqLine
		var qty string
		if err := rows.Scan(&line.ID, &line.RequisitionID, &line.ProductID, &qty); err != nil {
			return Requisition{}, nil, err
		}
		if line.Qty, err = decimal.NewFromString(qty); err != nil {
			return Requisition{}, nil, err
		}
		lines = append(lines, line)
	}
	return req, lines, rows.Err()
}

// ListRequisitions returns requisitions newest first, optionally filtered by
// status.
func (r *Repository) ListRequisitions(ctx context.Context, status ReqStatus, limit int) ([]Requisition, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + reqColumns + ` FROM requisitions`
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

	reqs := []Requisition{}
	for rows.Next() {
		req, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (t *txRepo) CreateRequisition(ctx context.Context, req Requisition) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO requisitions (number, department, status, total_cost, note, created_at)
		VALUES ($1, $2, $3, 0, $4, NOW()) RETURNING id`,
		req.Number, req.Department, string(req.Status), req.Note).Scan(&id)
	return id, err
}

func (t *txRepo) InsertReqLine(ctx context.Context, line ReqLine) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO requisition_lines (requisition_id, product_id, qty) VALUES ($1, $2, $3)`,
		line.RequisitionID, line.ProductID, line.Qty.String())
	return err
}

func (t *txRepo) GetRequisitionForUpdate(ctx context.Context, id int64) (Requisition, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+reqColumns+` FROM requisitions WHERE id = $1 FOR UPDATE`, id)
	return scanRequisition(row)
}

func (t *txRepo) UpdateRequisitionStatus(ctx context.Context, id int64, status ReqStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) MarkIssued(ctx context.Context, id int64, totalCost decimal.Decimal, issuedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requisitions SET status = $2, total_cost = $3, issued_at = $4 WHERE id = $1`,
		id, string(ReqStatusIssued), totalCost.String(), issuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRequisition(row pgx.Row) (Requisition, error) {
	var req Requisition
	var status, total string
	err := row.Scan(&req.ID, &req.Number, &req.Department, &status, &total, &req.Note, &req.CreatedAt, &req.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, shared.ErrNotFound
		}
		return Requisition{}, err
	}
	req.Status = ReqStatus(status)
	if req.TotalCost, err = decimal.NewFromString(total); err != nil {
		return Requisition{}, err
	}
	return req, nil
}
