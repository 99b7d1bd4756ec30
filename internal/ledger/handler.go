package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockforge-erp/stockforge/internal/platform/httpx"
)

// Handler exposes the ledger's read side plus the resync repair endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes under a product scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/batches", h.handleBatches)
	r.Get("/products/{id}/movements", h.handleMovements)
	r.Get("/products/{id}/availability", h.handleAvailability)
	r.Post("/products/{id}/resync", h.handleResync)
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	batches, err := h.service.ListBatches(r.Context(), id)
	if err != nil {
		h.logger.Error("list batches failed", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	available, err := h.service.Availability(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "available": available.String()})
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Resync(r.Context(), id); err != nil {
		h.logger.Error("resync failed", slog.Any("error", err), slog.Int64("product_id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return 0, false
	}
	return id, true
}
