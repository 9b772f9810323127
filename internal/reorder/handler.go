package reorder

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler exposes the reorder advisor over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reorder handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reorder routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/low-stock", h.handleLowStock)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.BusinessID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	status, err := h.service.Status(r.Context(), productID, identity.BusinessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.BusinessID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	statuses, err := h.service.LowStock(r.Context(), identity.BusinessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": statuses})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrProductNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("reorder query failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
