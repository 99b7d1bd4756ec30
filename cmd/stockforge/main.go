package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockforge-erp/stockforge/internal/app"
	"github.com/stockforge-erp/stockforge/internal/catalog"
	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/manufacturing"
	"github.com/stockforge-erp/stockforge/internal/observability"
	"github.com/stockforge-erp/stockforge/internal/platform/cache"
	"github.com/stockforge-erp/stockforge/internal/platform/db"
	"github.com/stockforge-erp/stockforge/internal/procurement"
	"github.com/stockforge-erp/stockforge/internal/requisitions"
	"github.com/stockforge-erp/stockforge/internal/sales"
	"github.com/stockforge-erp/stockforge/internal/settings"
	"github.com/stockforge-erp/stockforge/internal/shared"
	"github.com/stockforge-erp/stockforge/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	settingsService := settings.NewService(logger, settings.NewRepository(pool), redisClient, auditLogger)
	settingsHandler := settings.NewHandler(logger, settingsService)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService)

	engine := ledger.NewService(ledger.NewRepository(pool), auditLogger)
	ledgerHandler := ledger.NewHandler(logger, engine)

	manufacturingService := manufacturing.NewService(manufacturing.NewRepository(pool), engine, settingsService, auditLogger, idempotencyStore)
	manufacturingHandler := manufacturing.NewHandler(logger, manufacturingService)

	procurementService := procurement.NewService(procurement.NewRepository(pool), engine, settingsService, auditLogger, idempotencyStore)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	salesService := sales.NewService(sales.NewRepository(pool), engine, settingsService, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	requisitionsService := requisitions.NewService(requisitions.NewRepository(pool), engine, settingsService, auditLogger)
	requisitionsHandler := requisitions.NewHandler(logger, requisitionsService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		CatalogHandler:       catalogHandler,
		LedgerHandler:        ledgerHandler,
		SettingsHandler:      settingsHandler,
		ManufacturingHandler: manufacturingHandler,
		ProcurementHandler:   procurementHandler,
		SalesHandler:         salesHandler,
		RequisitionsHandler:  requisitionsHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
