package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler exposes product catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Post("/{id}/deactivate", h.handleDeactivate)
}

type productRequest struct {
	Name             string   `json:"name" validate:"required"`
	SKU              string   `json:"sku"`
	Unit             string   `json:"unit"`
	ReorderThreshold *float64 `json:"reorder_threshold" validate:"omitempty,gte=0"`
	OptimalQuantity  *float64 `json:"optimal_quantity" validate:"omitempty,gte=0"`
	Consumable       bool     `json:"consumable"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.Create(r.Context(), CreateInput{
		BusinessID:       identity.BusinessID,
		Name:             req.Name,
		SKU:              req.SKU,
		Unit:             req.Unit,
		ReorderThreshold: req.ReorderThreshold,
		OptimalQuantity:  req.OptimalQuantity,
		Consumable:       req.Consumable,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), productID, identity.BusinessID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filters := ListFilters{
		BusinessID: identity.BusinessID,
		ActiveOnly: q.Get("active") == "true",
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))
	products, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.service.Update(r.Context(), productID, identity.BusinessID, UpdateInput{
		Name:             req.Name,
		SKU:              req.SKU,
		Unit:             req.Unit,
		ReorderThreshold: req.ReorderThreshold,
		OptimalQuantity:  req.OptimalQuantity,
		Consumable:       req.Consumable,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), productID, identity.BusinessID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.BusinessID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Identity{}, false
	}
	return identity, true
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateSKU):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
