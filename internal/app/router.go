package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coldharbor-fpm/coldharbor/internal/masterdata"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/orders"
	"github.com/coldharbor-fpm/coldharbor/internal/sorting"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
	"github.com/coldharbor-fpm/coldharbor/internal/transfer"
	"github.com/coldharbor-fpm/coldharbor/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	StockHandler      *stock.Handler
	StorageHandler    *storage.Handler
	TransferHandler   *transfer.Handler
	OrdersHandler     *orders.Handler
	SortingHandler    *sorting.Handler
	MasterDataHandler *masterdata.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		params.StockHandler.MountRoutes(r)
		params.StorageHandler.MountRoutes(r)
		params.TransferHandler.MountRoutes(r)
		params.OrdersHandler.MountRoutes(r)
		params.SortingHandler.MountRoutes(r)
		params.MasterDataHandler.MountRoutes(r)
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
