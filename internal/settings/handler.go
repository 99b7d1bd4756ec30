package settings

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/platform/httpx"
)

// Handler wires HTTP endpoints for settings.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs settings handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/costing-method", h.handleGet)
	r.Put("/costing-method", h.handleSet)
}

type costingMethodPayload struct {
	Method string `json:"method"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	method, err := h.service.ActiveMethod(r.Context())
	if err != nil {
		h.logger.Error("settings read failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, costingMethodPayload{Method: method.String()})
}

func (h *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	var payload costingMethodPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	method := ledger.CostingMethod(payload.Method)
	if err := h.service.SetMethod(r.Context(), method); err != nil {
		if errors.Is(err, ledger.ErrUnknownMethod) {
			httpx.Problem(w, http.StatusBadRequest, "Unknown Method", err.Error())
			return
		}
		h.logger.Error("settings update failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, costingMethodPayload{Method: method.String()})
}
