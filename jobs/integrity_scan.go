package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/stockforge-erp/stockforge/internal/jobs"
	"github.com/stockforge-erp/stockforge/internal/ledger"
)

const defaultScanParallelism = 4

// IntegrityScanJob compares each product's stored available quantity with
// the sum of its open batch remainders and repairs any drift through the
// ledger's resync path.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Engine  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, engine *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Pool: pool, Engine: engine, Logger: logger, Metrics: metrics}
}

type driftedProduct struct {
	ID       int64
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

// Handle executes the scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Engine == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Parallelism <= 0 {
		payload.Parallelism = defaultScanParallelism
	}

	tracker := j.Metrics.Track(TaskLedgerIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	drifted, err := j.findDrift(ctx)
	if err != nil {
		resultErr = err
		return err
	}
	if len(drifted) == 0 {
		j.log().Info("ledger integrity scan clean", slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(payload.Parallelism)
	for _, p := range drifted {
		product := p
		group.Go(func() error {
			j.log().Warn("ledger drift detected",
				slog.Int64("product_id", product.ID),
				slog.String("stored", product.Stored.String()),
				slog.String("computed", product.Computed.String()))
			j.Metrics.AddDrift(product.ID, 1)
			return j.Engine.Resync(groupCtx, product.ID)
		})
	}
	if err := group.Wait(); err != nil {
		resultErr = err
		return err
	}
	j.log().Info("ledger integrity scan repaired drift",
		slog.Int("products", len(drifted)),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

// findDrift lists products whose stored availability disagrees with the sum
// of their batch remainders.
func (j *IntegrityScanJob) findDrift(ctx context.Context) ([]driftedProduct, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT p.id, p.available_qty, COALESCE(SUM(b.remaining), 0) AS computed
		FROM products p
		LEFT JOIN purchase_batches b ON b.product_id = p.id
		GROUP BY p.id, p.available_qty
		HAVING p.available_qty <> COALESCE(SUM(b.remaining), 0)
		ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drifted := []driftedProduct{}
	for rows.Next() {
		var p driftedProduct
		var stored, computed string
		if err := rows.Scan(&p.ID, &stored, &computed); err != nil {
			return nil, err
		}
		if p.Stored, err = decimal.NewFromString(stored); err != nil {
			return nil, err
		}
		if p.Computed, err = decimal.NewFromString(computed); err != nil {
			return nil, err
		}
		drifted = append(drifted, p)
	}
	return drifted, rows.Err()
}

func (j *IntegrityScanJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
