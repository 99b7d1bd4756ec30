package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stockforge-erp/stockforge/internal/catalog"
	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/manufacturing"
	"github.com/stockforge-erp/stockforge/internal/observability"
	"github.com/stockforge-erp/stockforge/internal/procurement"
	"github.com/stockforge-erp/stockforge/internal/requisitions"
	"github.com/stockforge-erp/stockforge/internal/sales"
	"github.com/stockforge-erp/stockforge/internal/settings"
	"github.com/stockforge-erp/stockforge/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	CatalogHandler       *catalog.Handler
	LedgerHandler        *ledger.Handler
	SettingsHandler      *settings.Handler
	ManufacturingHandler *manufacturing.Handler
	ProcurementHandler   *procurement.Handler
	SalesHandler         *sales.Handler
	RequisitionsHandler  *requisitions.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with standard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountRoutes)
		}
		if params.LedgerHandler != nil {
			r.Route("/ledger", params.LedgerHandler.MountRoutes)
		}
		if params.SettingsHandler != nil {
			r.Route("/settings", params.SettingsHandler.MountRoutes)
		}
		if params.ManufacturingHandler != nil {
			r.Route("/manufacturing", params.ManufacturingHandler.MountRoutes)
		}
		if params.ProcurementHandler != nil {
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.RequisitionsHandler != nil {
			r.Route("/requisitions", params.RequisitionsHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
