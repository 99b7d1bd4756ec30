package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan verifies product quantities against the
	// batch ledger and repairs drift.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
	// TaskIdempotencyCleanup prunes processed idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// IntegrityScanPayload carries scan options.
type IntegrityScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	// Parallelism bounds concurrent product repairs; zero means the
	// handler default.
	Parallelism int `json:"parallelism,omitempty"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity scan.
func NewIntegrityScanTask(payload IntegrityScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupJob prunes keys past their retention window.
type IdempotencyCleanupJob struct {
	Store  *shared.IdempotencyStore
	Logger *slog.Logger
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.Int("retention_hours", payload.RetentionHours))
	}
	return nil
}
