package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/platform/httpx"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/outlets", func(r chi.Router) {
		r.Get("/", h.listOutlets)
		r.Post("/", h.createOutlet)
		r.Get("/{id}", h.getOutlet)
	})
	r.Route("/processing-records", func(r chi.Router) {
		r.Get("/", h.listProcessingRecords)
		r.Post("/", h.createProcessingRecord)
		r.Get("/{id}", h.getProcessingRecord)
	})
}

func (h *Handler) listOutlets(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	outlets, err := h.service.ListOutlets(r.Context(), activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"outlets": outlets})
}

func (h *Handler) getOutlet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid outlet id"))
		return
	}
	outlet, err := h.service.GetOutlet(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, outlet)
}

func (h *Handler) createOutlet(w http.ResponseWriter, r *http.Request) {
	var input CreateOutletInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("%v", err))
		return
	}
	outlet, err := h.service.CreateOutlet(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, outlet)
}

func (h *Handler) listProcessingRecords(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid page"))
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid per_page"))
		return
	}
	records, pagination, err := h.service.ListProcessingRecords(r.Context(), page, perPage)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records, "pagination": pagination})
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) getProcessingRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid record id"))
		return
	}
	record, err := h.service.GetProcessingRecord(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) createProcessingRecord(w http.ResponseWriter, r *http.Request) {
	var input CreateProcessingRecordInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("invalid body: %v", err))
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.RespondError(w, shared.NewValidationError("%v", err))
		return
	}
	record, err := h.service.CreateProcessingRecord(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}
