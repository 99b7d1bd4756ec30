package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

// Repository persists settings in the single-row app_settings table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCostingMethod reads the configured method.
func (r *Repository) GetCostingMethod(ctx context.Context) (ledger.CostingMethod, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT costing_method FROM app_settings WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("settings: get costing method: %w", err)
	}
	method := ledger.CostingMethod(raw)
	if !method.IsValid() {
		return "", fmt.Errorf("settings: stored method %q is not recognised", raw)
	}
	return method, nil
}

// SetCostingMethod upserts the configured method.
func (r *Repository) SetCostingMethod(ctx context.Context, method ledger.CostingMethod) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO app_settings (id, costing_method, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET costing_method = EXCLUDED.costing_method, updated_at = NOW()`,
		method.String())
	if err != nil {
		return fmt.Errorf("settings: set costing method: %w", err)
	}
	return nil
}
