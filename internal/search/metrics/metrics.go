package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the search module.
type Metrics struct {
	// Backend call latencies by backend and outcome status
	BackendLatency *prometheus.HistogramVec

	// Merged search results by section and kind
	SearchOutcome *prometheus.CounterVec

	// Searches where every backend timed out
	AllTimedOut prometheus.Counter

	// Overall search latency including merge
	SearchLatency prometheus.Histogram

	TokenCache        *prometheus.CounterVec
	TokenAcquisitions *prometheus.CounterVec

	CircuitTransitions *prometheus.CounterVec
}

// New registers the search metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the search metrics with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peoplefinder_backend_duration_seconds",
			Help:    "Duration of backend search calls by backend and status",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend", "status"}), // status: found, candidates, absent, timeout, backend_error, ...

		SearchOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peoplefinder_search_results_total",
			Help: "Total merged search results by section and kind",
		}, []string{"section", "kind"}),

		AllTimedOut: f.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_search_all_timed_out_total",
			Help: "Searches where every backend timed out",
		}),

		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "peoplefinder_search_duration_seconds",
			Help:    "Duration of a full search including fan-out and merge",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),

		TokenCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peoplefinder_token_cache_lookups_total",
			Help: "Token cache lookups by backend and result",
		}, []string{"backend", "result"}), // result: hit, miss

		TokenAcquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peoplefinder_token_acquisitions_total",
			Help: "Client-credentials exchanges by backend and result",
		}, []string{"backend", "result"}), // result: success, failure

		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "peoplefinder_circuit_transitions_total",
			Help: "Circuit breaker state changes by backend",
		}, []string{"backend", "state"}),
	}
}

// ObserveBackendLatency records one backend call.
func (m *Metrics) ObserveBackendLatency(backend, status string, d time.Duration) {
	if m != nil {
		m.BackendLatency.WithLabelValues(backend, status).Observe(d.Seconds())
	}
}

// IncrementOutcome records a merged section result.
func (m *Metrics) IncrementOutcome(section, kind string) {
	if m != nil {
		m.SearchOutcome.WithLabelValues(section, kind).Inc()
	}
}

func (m *Metrics) IncrementAllTimedOut() {
	if m != nil {
		m.AllTimedOut.Inc()
	}
}

func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordTokenCacheHit(backend string) {
	if m != nil {
		m.TokenCache.WithLabelValues(backend, "hit").Inc()
	}
}

func (m *Metrics) RecordTokenCacheMiss(backend string) {
	if m != nil {
		m.TokenCache.WithLabelValues(backend, "miss").Inc()
	}
}

func (m *Metrics) RecordTokenAcquisition(backend string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.TokenAcquisitions.WithLabelValues(backend, result).Inc()
}

// RecordCircuitTransition records a breaker opening or closing.
func (m *Metrics) RecordCircuitTransition(backend, state string) {
	if m != nil {
		m.CircuitTransitions.WithLabelValues(backend, state).Inc()
	}
}
