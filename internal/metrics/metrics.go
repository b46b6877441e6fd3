// Package metrics exposes Prometheus counters for the portal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Siruyy/cluegate/internal/gate"
	"github.com/Siruyy/cluegate/internal/limiter"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LimiterDecisionsTotal *prometheus.CounterVec
	ClueTransitionsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all collectors on registry. A nil registry
// gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cluegate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cluegate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		LimiterDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cluegate_limiter_decisions_total",
				Help: "Rate limiter decisions by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		ClueTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cluegate_clue_transitions_total",
				Help: "Clue gate operations by kind",
			},
			[]string{"kind"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LimiterDecisionsTotal,
		m.ClueTransitionsTotal,
	)

	return m
}

// ObserveDecision counts one limiter decision.
func (m *Metrics) ObserveDecision(policy limiter.Policy, d limiter.Decision) {
	outcome := "allowed"
	if !d.Allowed {
		outcome = "blocked"
	}
	m.LimiterDecisionsTotal.WithLabelValues(string(policy), outcome).Inc()
}

// ObserveGateEvent counts one gate event. Locked evaluations and wrong
// submissions get their own kinds.
func (m *Metrics) ObserveGateEvent(e gate.Event) {
	kind := string(e.Kind)
	switch {
	case e.Kind == gate.EventEvaluated && e.State == gate.StateLocked:
		kind = "locked"
	case e.Kind == gate.EventSubmitted && !e.Correct:
		kind = "wrong"
	}
	m.ClueTransitionsTotal.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. pattern labels the route
// so path parameters do not explode cardinality.
func (m *Metrics) Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
