// Package telemetry holds the Prometheus collectors for the server.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chronoguard"

// Reservation outcomes.
const (
	OutcomeReserved = "reserved"
	OutcomeExceeded = "exceeded"
	OutcomeInactive = "inactive"
	OutcomeReleased = "released"
	OutcomeError    = "error"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	QuotaReservations *prometheus.CounterVec
	RiskScores        *prometheus.CounterVec
	RiskFallbacks     prometheus.Counter
	RemindersTotal    *prometheus.CounterVec
	SnapshotsTotal    *prometheus.CounterVec
	RiskRefreshed     prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric with reg. Tests pass a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		QuotaReservations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "reservations_total",
			Help:      "Quota reservation attempts by resource and outcome.",
		}, []string{"resource", "outcome"}),

		RiskScores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "scores_total",
			Help:      "Appointments scored by resulting tier.",
		}, []string{"tier"}),

		RiskFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "fallbacks_total",
			Help:      "Scores that fell back to the baseline because a feature was missing.",
		}),

		RemindersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "requests_total",
			Help:      "Reminder dispatch requests by outcome.",
		}, []string{"outcome"}),

		SnapshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "snapshots_total",
			Help:      "Dashboard snapshots served, by source.",
		}, []string{"source"}),

		RiskRefreshed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "refreshed_total",
			Help:      "Appointments rescored by the background refresh job.",
		}),

		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight requests. Routes are
// labelled by their chi pattern so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.InFlightGauge.Inc()
		defer c.InFlightGauge.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		c.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		c.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
