package manufacturing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the production workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs manufacturing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers manufacturing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/boms", h.handleCreateBOM)
	r.Get("/boms/{productID}", h.handleGetBOM)
	r.Get("/orders", h.handleListOrders)
	r.Post("/orders", h.handleCreateOrder)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Post("/orders/{id}/start", h.handleStart)
	r.Post("/orders/{id}/cancel", h.handleCancel)
	r.Post("/orders/{id}/complete", h.handleComplete)
}

type bomLinePayload struct {
	MaterialID int64  `json:"material_id" validate:"required"`
	Quantity   string `json:"quantity" validate:"required"`
}

type createBOMPayload struct {
	ProductID int64            `json:"product_id" validate:"required"`
	Name      string           `json:"name"`
	Lines     []bomLinePayload `json:"lines" validate:"required,min=1,dive"`
}

type createOrderPayload struct {
	Number    string `json:"number"`
	ProductID int64  `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Note      string `json:"note"`
}

func (h *Handler) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var payload createBOMPayload
	if !h.decode(w, r, &payload) {
		return
	}
	input := CreateBOMInput{ProductID: payload.ProductID, Name: payload.Name}
	for _, line := range payload.Lines {
		qty, err := decimal.NewFromString(line.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line quantity must be numeric")
			return
		}
		input.Lines = append(input.Lines, BOMLineInput{MaterialID: line.MaterialID, Quantity: qty})
	}
	bom, err := h.service.CreateBOM(r.Context(), input)
	if err != nil {
		h.logger.Error("create bom failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bom)
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	bom, err := h.service.GetBOM(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.ListOrders(r.Context(), OrderStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("list orders failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var payload createOrderPayload
	if !h.decode(w, r, &payload) {
		return
	}
	order, err := h.service.CreateOrder(r.Context(), CreateOrderInput{
		Number:    payload.Number,
		ProductID: payload.ProductID,
		Quantity:  payload.Quantity,
		Note:      payload.Note,
	})
	if err != nil {
		if errors.Is(err, ErrMissingBOM) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Missing BOM", err.Error())
			return
		}
		h.logger.Error("create order failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Start(r.Context(), id); err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.respondWorkflowError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondWorkflowError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":      "Insufficient Stock",
			"detail":     insufficient.Error(),
			"product_id": insufficient.ProductID,
			"requested":  insufficient.Requested.String(),
			"available":  insufficient.Available.String(),
		})
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrMissingBOM):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing BOM", err.Error())
	case errors.Is(err, ErrInvalidMargin):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Margin", err.Error())
	default:
		h.logger.Error("production workflow failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
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
