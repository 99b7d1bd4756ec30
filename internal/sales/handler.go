package sales

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

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.handleList)
	r.Post("/orders", h.handleCreate)
	r.Get("/orders/{id}", h.handleGet)
	r.Post("/orders/{id}/fulfill", h.handleFulfill)
	r.Post("/orders/{id}/cancel", h.handleCancel)
}

type saleLinePayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
	Price     string `json:"price"`
}

type createSalePayload struct {
	Number      string            `json:"number"`
	CustomerRef string            `json:"customer_ref"`
	Note        string            `json:"note"`
	Lines       []saleLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sales, err := h.service.ListSales(r.Context(), SaleStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("list sales failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createSalePayload
	if !h.decode(w, r, &payload) {
		return
	}
	input := CreateSaleInput{Number: payload.Number, CustomerRef: payload.CustomerRef, Note: payload.Note}
	for _, line := range payload.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line qty must be numeric")
			return
		}
		price := decimal.Zero
		if line.Price != "" {
			if price, err = decimal.NewFromString(line.Price); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line price must be numeric")
				return
			}
		}
		input.Lines = append(input.Lines, SaleLineInput{ProductID: line.ProductID, Qty: qty, Price: price})
	}

	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.logger.Error("create sale failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	sale, lines, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sale": sale, "lines": lines})
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	cogs, err := h.service.Fulfill(r.Context(), id)
	if err != nil {
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
		case errors.Is(err, ErrInvalidState):
			httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
		default:
			h.logger.Error("fulfill sale failed", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cogs": cogs.String()})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.saleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, ErrInvalidState) {
			httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
			return
		}
		h.logger.Error("cancel sale failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) saleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
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
