package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/httpx"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Handler serves the stock read model and advisory planning endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.available)
	r.Post("/stock/plan", h.plan)
	r.Get("/stock/oldest-batches", h.oldestBatches)
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.Available(r.Context())
	if err != nil {
		h.logger.Error("aggregate stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stock)
}

// planRequest is the advisory planning input. Exactly one of weight_kg or
// pieces must be positive.
type planRequest struct {
	SizeClass int     `json:"size_class" validate:"gte=0,lte=10"`
	WeightKg  float64 `json:"weight_kg" validate:"gte=0"`
	Pieces    int64   `json:"pieces" validate:"gte=0"`
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("%v", err))
		return
	}

	requirement := Requirement{SizeClass: shared.SizeClass(req.SizeClass)}
	switch {
	case req.WeightKg > 0 && req.Pieces > 0:
		httpx.RespondError(w, shared.NewValidationError("specify weight_kg or pieces, not both"))
		return
	case req.Pieces > 0:
		requirement.Mode = ByPieces
		requirement.Pieces = req.Pieces
	default:
		requirement.Mode = ByWeight
		requirement.WeightGrams = ledger.KgToGrams(req.WeightKg)
	}

	plan, err := h.service.Plan(r.Context(), requirement)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) oldestBatches(w http.ResponseWriter, r *http.Request) {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("size query parameter required"))
		return
	}
	batches, err := h.service.OldestBatches(r.Context(), shared.SizeClass(size))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}
