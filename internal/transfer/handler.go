package transfer

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/platform/httpx"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Handler exposes transfer endpoints.
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

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/batch", h.createBatch)
		r.Get("/{id}", h.get)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/decline", h.decline)
		r.Post("/{id}/complete", h.complete)
	})
}

type batchRequest struct {
	Requests []CreateInput `json:"requests" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("%v", err))
		return
	}
	t, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, shared.NewValidationError("%v", err))
		return
	}
	transfers, err := h.service.CreateBatch(r.Context(), req.Requests, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transfers": transfers})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid transfer id"))
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = Status(status)
	}
	if loc := r.URL.Query().Get("location"); loc != "" {
		id, err := uuid.Parse(loc)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("invalid location id"))
			return
		}
		filter.LocationID = &id
	}
	transfers, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor string) (Transfer, error) {
		return h.service.Approve(r.Context(), id, actor)
	})
}

func (h *Handler) decline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor string) (Transfer, error) {
		return h.service.Decline(r.Context(), id, actor)
	})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, _ string) (Transfer, error) {
		return h.service.Complete(r.Context(), id)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID, string) (Transfer, error)) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid transfer id"))
		return
	}
	t, err := fn(id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
