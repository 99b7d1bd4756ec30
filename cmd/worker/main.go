package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockforge-erp/stockforge/internal/app"
	jobmetrics "github.com/stockforge-erp/stockforge/internal/jobs"
	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/platform/db"
	"github.com/stockforge-erp/stockforge/internal/shared"
	"github.com/stockforge-erp/stockforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	engine := ledger.NewService(ledger.NewRepository(pool), auditLogger)
	metrics := jobmetrics.NewMetrics(nil)

	scanJob := jobs.NewIntegrityScanJob(pool, engine, logger, metrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: idempotencyStore, Logger: logger}

	var cron []jobs.CronRegistration
	if cfg.IntegrityScanCron != "" {
		scanTask, err := jobs.NewIntegrityScanTask(jobs.IntegrityScanPayload{ScheduledFor: time.Now().UTC()})
		if err != nil {
			logger.Error("build integrity scan task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.IntegrityScanCron,
			Task:    scanTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{RetentionHours: 72})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	cron = append(cron, jobs.CronRegistration{
		Spec:    "45 3 * * *",
		Task:    cleanupTask,
		Options: []asynq.Option{asynq.MaxRetry(3)},
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrityScan, Handler: scanJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
