package orders

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/platform/httpx"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Handler exposes outlet order endpoints.
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

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Get("/{id}/dispatch", h.getDispatch)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/dispatch", h.dispatch)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type dispatchRequest struct {
	Destination string       `json:"destination" validate:"max=200"`
	PickedItems []PickedItem `json:"picked_items" validate:"dive"`
}

type orderWithDispatch struct {
	Order    OutletOrder    `json:"order"`
	Dispatch DispatchRecord `json:"dispatch"`
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
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) getDispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetDispatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = Status(status)
	}
	if outlet := r.URL.Query().Get("outlet"); outlet != "" {
		id, err := uuid.Parse(outlet)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("invalid outlet id"))
			return
		}
		filter.OutletID = &id
	}
	found, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": found})
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, dispatch, err := h.service.Confirm(r.Context(), id)
	if err != nil {
		respondConfirmError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderWithDispatch{Order: order, Dispatch: dispatch})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req dispatchRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.RespondError(w, shared.NewValidationError("%v", err))
			return
		}
	}
	order, dispatch, err := h.service.Dispatch(r.Context(), id, req.PickedItems, req.Destination)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderWithDispatch{Order: order, Dispatch: dispatch})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid order id"))
		return uuid.Nil, false
	}
	return id, true
}

// respondConfirmError keeps the per-size shortfall report structured in the
// response body instead of flattening it into a detail string.
func respondConfirmError(w http.ResponseWriter, err error) {
	var shortfall *ShortfallError
	if errors.As(err, &shortfall) {
		httpx.ProblemWith(w, http.StatusUnprocessableEntity, "Insufficient Stock", shortfall.Error(), map[string]any{
			"order_id":   shortfall.OrderID.String(),
			"shortfalls": shortfall.Shortfalls,
		})
		return
	}
	httpx.RespondError(w, err)
}
