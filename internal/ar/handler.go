package ar

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moldworks-erp/moldworks-erp/internal/platform/httpx"
)

// Handler exposes AR read endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches AR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.Aging)
	r.Get("/open-items", h.ListOpenItems)
	r.Get("/open-items/{id}", h.GetOpenItem)
}

// Aging serves bucketed outstanding balances.
func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.logger.Error("ar aging", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, bucket)
}

// ListOpenItems serves open item listings filtered by customer.
func (h *Handler) ListOpenItems(w http.ResponseWriter, r *http.Request) {
	req := ListOpenItemsRequest{Limit: 200}
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "customer_id must be numeric")
			return
		}
		req.CustomerID = id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		req.Status = ItemStatus(raw)
	}
	items, err := h.service.ListOpenItems(r.Context(), req)
	if err != nil {
		h.logger.Error("ar list open items", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetOpenItem serves one open item.
func (h *Handler) GetOpenItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "id must be numeric")
		return
	}
	item, err := h.service.GetOpenItem(r.Context(), id)
	if err != nil {
		if err == ErrItemNotFound {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "open item not found")
			return
		}
		h.logger.Error("ar get open item", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}
