package requisitions

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

// Handler wires HTTP endpoints for requisitions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs requisitions handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/issue", h.handleIssue)
	r.Post("/{id}/cancel", h.handleCancel)
}

type reqLinePayload struct {
	ProductID int64  `json:"product_id" validate:"required"`
	Qty       string `json:"qty" validate:"required"`
}

type createReqPayload struct {
	Number     string           `json:"number"`
	Department string           `json:"department"`
	Note       string           `json:"note"`
	Lines      []reqLinePayload `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	reqs, err := h.service.ListRequisitions(r.Context(), ReqStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		h.logger.Error("list requisitions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisitions": reqs})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createReqPayload
	if !h.decode(w, r, &payload) {
		return
	}
	input := CreateInput{Number: payload.Number, Department: payload.Department, Note: payload.Note}
	for _, line := range payload.Lines {
		qty, err := decimal.NewFromString(line.Qty)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line qty must be numeric")
			return
		}
		input.Lines = append(input.Lines, ReqLineInput{ProductID: line.ProductID, Qty: qty})
	}

	req, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create requisition failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, req)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reqID(w, r)
	if !ok {
		return
	}
	req, lines, err := h.service.GetRequisition(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisition": req, "lines": lines})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reqID(w, r)
	if !ok {
		return
	}
	total, err := h.service.Issue(r.Context(), id)
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
			h.logger.Error("issue requisition failed", slog.Any("error", err), slog.Int64("id", id))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total_cost": total.String()})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.reqID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, ErrInvalidState) {
			httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
			return
		}
		h.logger.Error("cancel requisition failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reqID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "requisition id must be numeric")
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
