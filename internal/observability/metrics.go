package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	plansTotal        *prometheus.CounterVec
	ordersTotal       *prometheus.CounterVec
	transfersTotal    *prometheus.CounterVec
	batchesCompleted  prometheus.Counter
	usageReconcileRun prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldharbor_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coldharbor_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	plans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldharbor_allocation_plans_total",
		Help: "FIFO allocation plans by outcome.",
	}, []string{"outcome"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldharbor_outlet_orders_total",
		Help: "Outlet order lifecycle events.",
	}, []string{"event"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coldharbor_transfers_total",
		Help: "Stock transfer lifecycle events.",
	}, []string{"event"})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coldharbor_sorting_batches_completed_total",
		Help: "Sorting batches materialised into the stock ledger.",
	})
	reconcile := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coldharbor_usage_reconcile_runs_total",
		Help: "Storage usage reconciliation job runs.",
	})
	registry.MustRegister(requests, duration, plans, orders, transfers, batches, reconcile)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		plansTotal:        plans,
		ordersTotal:       orders,
		transfersTotal:    transfers,
		batchesCompleted:  batches,
		usageReconcileRun: reconcile,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObservePlan counts an allocation plan by outcome.
func (m *Metrics) ObservePlan(satisfied bool) {
	if m == nil {
		return
	}
	outcome := "satisfied"
	if !satisfied {
		outcome = "shortfall"
	}
	m.plansTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrderEvent counts an outlet order lifecycle event.
func (m *Metrics) ObserveOrderEvent(event string) {
	if m == nil {
		return
	}
	m.ordersTotal.WithLabelValues(event).Inc()
}

// ObserveTransferEvent counts a transfer lifecycle event.
func (m *Metrics) ObserveTransferEvent(event string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(event).Inc()
}

// ObserveBatchCompleted counts a completed sorting batch.
func (m *Metrics) ObserveBatchCompleted() {
	if m == nil {
		return
	}
	m.batchesCompleted.Inc()
}

// ObserveUsageReconcile counts a reconciliation run.
func (m *Metrics) ObserveUsageReconcile() {
	if m == nil {
		return
	}
	m.usageReconcileRun.Inc()
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
