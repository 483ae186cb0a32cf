// Package metrics exposes Prometheus collectors for the fetch service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. All methods are safe on a nil
// receiver so components can run without metrics in tests.
type Metrics struct {
	gatherer prometheus.Gatherer

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	permitWait      prometheus.Histogram
	inFlight        prometheus.Gauge
	waiting         prometheus.Gauge
}

// New registers the collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partsfetch_attempts_total",
				Help: "Total number of strategy attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		),
		attemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "partsfetch_attempt_duration_seconds",
				Help:    "Histogram of strategy attempt durations, labeled by strategy.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"strategy"},
		),
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "partsfetch_requests_total",
				Help: "Total number of fetch-and-classify requests, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		permitWait: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "partsfetch_permit_wait_seconds",
				Help:    "Histogram of time spent waiting for a fetch permit.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
		inFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "partsfetch_fetches_in_flight",
				Help: "Number of fetches currently holding a permit.",
			},
		),
		waiting: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "partsfetch_fetches_waiting",
				Help: "Number of fetches waiting for a permit.",
			},
		),
	}
}

// Handler returns an http.Handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAttempt records one strategy attempt.
func (m *Metrics) ObserveAttempt(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(strategy, outcome).Inc()
	m.attemptDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveRequest records the final outcome of one request.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

// ObservePermitWait records how long a fetch waited for a permit.
func (m *Metrics) ObservePermitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.permitWait.Observe(d.Seconds())
}

// SetLimiter publishes the permit gauges.
func (m *Metrics) SetLimiter(inFlight, waiting int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(inFlight))
	m.waiting.Set(float64(waiting))
}
