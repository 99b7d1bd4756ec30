package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockforge-erp/stockforge/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDeactivate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 20
	}
	filters := ListFilters{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		StockType: q.Get("stock_type"),
		SortBy:    q.Get("sort"),
		SortDir:   q.Get("dir"),
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}

	products, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products": products,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	product, err := h.service.Create(r.Context(), form)
	if err != nil {
		h.logger.Error("create product failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	product, err := h.service.Update(r.Context(), id, form)
	if err != nil {
		h.logger.Error("update product failed", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (ProductForm, bool) {
	var form ProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return ProductForm{}, false
	}
	if err := h.validator.Struct(form); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Field()+" is invalid")
			return ProductForm{}, false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ProductForm{}, false
	}
	return form, true
}
