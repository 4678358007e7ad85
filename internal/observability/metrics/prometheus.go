// Package metrics provides Prometheus metrics for the quantity calculator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/pharmetric/rxcalc/pkg/circuitbreaker"
)

// Metrics holds all application metrics
type Metrics struct {
	CalculationsTotal      prometheus.Counter
	CalculationFailures    *prometheus.CounterVec
	CalculationDuration    prometheus.Histogram
	WarningsEmitted        *prometheus.CounterVec
	AdapterRequestDuration *prometheus.HistogramVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates and registers all metrics on reg. Passing a fresh registry in
// tests avoids duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CalculationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calculations_total",
			Help: "Total quantity calculations attempted",
		}),
		CalculationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calculation_failures_total",
			Help: "Failed calculations by error code",
		}, []string{"code"}),
		CalculationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calculation_duration_seconds",
			Help:    "End-to-end calculation duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}),
		WarningsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calculation_warnings_total",
			Help: "Warnings attached to results by type",
		}, []string{"type"}),
		AdapterRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adapter_request_duration_seconds",
			Help:    "Upstream adapter request duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"adapter"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.CalculationsTotal,
		m.CalculationFailures,
		m.CalculationDuration,
		m.WarningsEmitted,
		m.AdapterRequestDuration,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveCalculation records one finished calculation. code is empty on
// success.
func (m *Metrics) ObserveCalculation(code string, elapsed time.Duration) {
	m.CalculationsTotal.Inc()
	m.CalculationDuration.Observe(elapsed.Seconds())
	if code != "" {
		m.CalculationFailures.WithLabelValues(code).Inc()
	}
}

// AdapterTimer returns a hook recording upstream request durations for the
// named adapter. Lookup clients accept it as their Observe option.
func (m *Metrics) AdapterTimer(adapter string) func(time.Duration) {
	h := m.AdapterRequestDuration.WithLabelValues(adapter)
	return func(elapsed time.Duration) {
		h.Observe(elapsed.Seconds())
	}
}

// BreakerStateHook returns a circuitbreaker.StateFunc that keeps the state
// gauge current.
func (m *Metrics) BreakerStateHook() circuitbreaker.StateFunc {
	return func(name string, state gobreaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(circuitbreaker.StateValue(state))
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
