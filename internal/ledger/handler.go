package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-pos/meridian/internal/observability"
	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler wires the stock mutation endpoints. These are thin: parsing and
// status mapping live here, all invariants live in the Service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/add", h.handleAddStock)
	r.Post("/sell", h.handleSell)
	r.Post("/consume", h.handleConsume)
	r.Post("/adjust", h.handleAdjust)
	r.Get("/movements", h.handleMovements)
}

type addStockRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Note      string  `json:"note"`
}

type sellRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	SaleID    string  `json:"sale_id" validate:"omitempty,uuid"`
	Note      string  `json:"note"`
}

type consumeRequest struct {
	ProductID     int64   `json:"product_id" validate:"required,gt=0"`
	Quantity      float64 `json:"quantity" validate:"required,gt=0"`
	ServiceSaleID string  `json:"service_sale_id" validate:"omitempty,uuid"`
	Note          string  `json:"note"`
}

type adjustRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required"`
	Reason    string  `json:"reason"`
}

type movementJSON struct {
	ID               int64     `json:"id"`
	ProductID        int64     `json:"product_id"`
	Type             string    `json:"type"`
	Quantity         float64   `json:"quantity"`
	PreviousQuantity float64   `json:"previous_quantity"`
	NewQuantity      float64   `json:"new_quantity"`
	Note             string    `json:"note,omitempty"`
	RefID            string    `json:"ref_id,omitempty"`
	RefType          string    `json:"ref_type,omitempty"`
	PerformedBy      int64     `json:"performed_by"`
	CreatedAt        time.Time `json:"created_at"`
}

type summaryJSON struct {
	ProductID        int64   `json:"product_id"`
	Name             string  `json:"name"`
	PreviousQuantity float64 `json:"previous_quantity"`
	NewQuantity      float64 `json:"new_quantity"`
}

type movementResponse struct {
	Movement movementJSON `json:"movement"`
	Product  summaryJSON  `json:"product"`
}

func toMovementResponse(result MovementResult) movementResponse {
	m := result.Movement
	return movementResponse{
		Movement: movementJSON{
			ID:               m.ID,
			ProductID:        m.ProductID,
			Type:             string(m.Type),
			Quantity:         m.Quantity,
			PreviousQuantity: m.PreviousQuantity,
			NewQuantity:      m.NewQuantity,
			Note:             m.Note,
			RefID:            m.RefID,
			RefType:          m.RefType,
			PerformedBy:      m.PerformedBy,
			CreatedAt:        m.CreatedAt,
		},
		Product: summaryJSON{
			ProductID:        result.Product.ProductID,
			Name:             result.Product.Name,
			PreviousQuantity: result.Product.PreviousQuantity,
			NewQuantity:      result.Product.NewQuantity,
		},
	}
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req addStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.AddStock(r.Context(), AddStockInput{
		ProductID:      req.ProductID,
		BusinessID:     identity.BusinessID,
		ActorID:        identity.ActorID,
		Quantity:       req.Quantity,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.respondMovement(w, result, err)
}

func (h *Handler) handleSell(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Sell(r.Context(), SellInput{
		ProductID:      req.ProductID,
		BusinessID:     identity.BusinessID,
		ActorID:        identity.ActorID,
		Quantity:       req.Quantity,
		SaleID:         req.SaleID,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.respondMovement(w, result, err)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req consumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ConsumeInService(r.Context(), ConsumeInput{
		ProductID:      req.ProductID,
		BusinessID:     identity.BusinessID,
		ActorID:        identity.ActorID,
		Quantity:       req.Quantity,
		ServiceSaleID:  req.ServiceSaleID,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.respondMovement(w, result, err)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Adjust(r.Context(), AdjustInput{
		ProductID:      req.ProductID,
		BusinessID:     identity.BusinessID,
		ActorID:        identity.ActorID,
		Delta:          req.Quantity,
		Reason:         req.Reason,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.respondMovement(w, result, err)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), productID, identity.BusinessID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]movementJSON, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(MovementResult{Movement: m}).Movement)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) requireIdentity(w http.ResponseWriter, r *http.Request) (shared.Identity, bool) {
	identity := shared.IdentityFromContext(r.Context())
	if identity.BusinessID == 0 || identity.ActorID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.Identity{}, false
	}
	return identity, true
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

func (h *Handler) respondMovement(w http.ResponseWriter, result MovementResult, err error) {
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.RecordMovement(string(result.Movement.Type))
	httpx.JSON(w, http.StatusCreated, toMovementResponse(result))
}

type insufficientStockProblem struct {
	httpx.ProblemDetail
	Available float64 `json:"available"`
	Required  float64 `json:"required"`
}

// respondError maps ledger errors to HTTP statuses. The mapping lives in the
// handler; the engine only reports error kinds.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusBadRequest, insufficientStockProblem{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Insufficient Stock",
				Status: http.StatusBadRequest,
				Detail: insufficient.Error(),
			},
			Available: insufficient.Available,
			Required:  insufficient.Required,
		})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidMovementType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrWrongBusiness):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("stock movement failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
