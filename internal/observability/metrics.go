// Package observability collects Prometheus metrics for the ledger services.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the registry and all ledger instruments.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	transfersTotal    *prometheus.CounterVec
	outboxTotal       *prometheus.CounterVec
	projectionTotal   *prometheus.CounterVec
	balanceReadsTotal *prometheus.CounterVec
}

// NewMetrics initialises the registry and instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "koboledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "koboledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "koboledger_transfers_total",
		Help: "Fast transfers by outcome.",
	}, []string{"outcome"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "koboledger_outbox_messages_total",
		Help: "Outbox dispatch attempts by outcome.",
	}, []string{"outcome"})
	projection := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "koboledger_projection_facts_total",
		Help: "Projection facts by outcome.",
	}, []string{"outcome"})
	balanceReads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "koboledger_balance_reads_total",
		Help: "Balance reads by winning source.",
	}, []string{"source"})
	registry.MustRegister(requests, duration, transfers, outbox, projection, balanceReads)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		transfersTotal:    transfers,
		outboxTotal:       outbox,
		projectionTotal:   projection,
		balanceReadsTotal: balanceReads,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// TransferExecuted counts a committed movement.
func (m *Metrics) TransferExecuted() { m.transfersTotal.WithLabelValues("executed").Inc() }

// TransferDuplicate counts an idempotent replay.
func (m *Metrics) TransferDuplicate() { m.transfersTotal.WithLabelValues("duplicate").Inc() }

// OutboxPublished counts a delivered message.
func (m *Metrics) OutboxPublished() { m.outboxTotal.WithLabelValues("published").Inc() }

// OutboxFailed counts a failed delivery attempt.
func (m *Metrics) OutboxFailed() { m.outboxTotal.WithLabelValues("failed").Inc() }

// ProjectionApplied counts an applied fact.
func (m *Metrics) ProjectionApplied() { m.projectionTotal.WithLabelValues("applied").Inc() }

// ProjectionSkipped counts a stale or malformed fact.
func (m *Metrics) ProjectionSkipped() { m.projectionTotal.WithLabelValues("skipped").Inc() }

// BalanceRead counts a resolved balance read by source.
func (m *Metrics) BalanceRead(source string) { m.balanceReadsTotal.WithLabelValues(source).Inc() }

// Middleware records request metrics per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
