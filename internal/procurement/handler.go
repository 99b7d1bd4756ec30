package procurement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/platform/httpx"
)

// Handler wires HTTP endpoints for procurement.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.handleList)
	r.Post("/orders", h.handleCreate)
	r.Get("/orders/{id}", h.handleGet)
	r.Post("/orders/{id}/submit", h.handleSubmit)
	r.Post("/orders/{id}/confirm", h.handleConfirm)
	r.Post("/orders/{id}/cancel", h.handleCancel)
	r.Post("/orders/{id}/deliver", h.handleDeliver)
	r.Post("/stock-in", h.handleStockIn)
}

type poLinePayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
	UnitCost  string `json:"unit_cost" validate:"required"`
	Note      string `json:"note"`
}

type createPOPayload struct {
	Number       string          `json:"number"`
	SupplierID   int64           `json:"supplier_id"`
	ExpectedDate string          `json:"expected_date"`
	Note         string          `json:"note"`
	Lines        []poLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type stockInPayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
	UnitCost  string `json:"unit_cost" validate:"required"`
	BatchRef  string `json:"batch_ref"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.ListPOs(r.Context(), POStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("list purchase orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createPOPayload
	if !h.decode(w, r, &payload) {
		return
	}
	input := CreatePOInput{Number: payload.Number, SupplierID: payload.SupplierID, Note: payload.Note}
	if payload.ExpectedDate != "" {
		expected, err := time.Parse("2006-01-02", payload.ExpectedDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expected_date must be YYYY-MM-DD")
			return
		}
		input.ExpectedDate = expected
	}
	for _, line := range payload.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line qty must be numeric")
			return
		}
		cost, err := decimal.NewFromString(line.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line unit_cost must be numeric")
			return
		}
		input.Lines = append(input.Lines, POLineInput{ProductID: line.ProductID, Qty: qty, UnitCost: cost, Note: line.Note})
	}

	po, err := h.service.CreatePO(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase order failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.poID(w, r)
	if !ok {
		return
	}
	po, lines, err := h.service.GetPO(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": po, "lines": lines})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Submit)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ConfirmDelivery)
}

func (h *Handler) handleStockIn(w http.ResponseWriter, r *http.Request) {
	var payload stockInPayload
	if !h.decode(w, r, &payload) {
		return
	}
	qty, err := decimal.NewFromString(payload.Qty)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "qty must be numeric")
		return
	}
	cost, err := decimal.NewFromString(payload.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be numeric")
		return
	}
	batchID, err := h.service.StockIn(r.Context(), StockInInput{
		ProductID: payload.ProductID,
		Qty:       qty,
		UnitCost:  cost,
		BatchRef:  payload.BatchRef,
	})
	if err != nil {
		h.logger.Error("stock in failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"batch_id": batchID})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) error) {
	id, ok := h.poID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		if errors.Is(err, ErrInvalidState) {
			httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
			return
		}
		h.logger.Error("purchase order transition failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) poID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "order id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Field()+" is invalid")
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}
