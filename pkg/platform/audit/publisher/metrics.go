package publisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Emitted             prometheus.Counter
	Dropped             prometheus.Counter
	PersistFailures     prometheus.Counter
	PersistDuration     prometheus.Histogram
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers the audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_audit_events_emitted_total",
			Help: "Total number of search audit events persisted",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_audit_events_dropped_total",
			Help: "Total number of search audit events dropped (buffer full or circuit open)",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "peoplefinder_audit_persist_failures_total",
			Help: "Total number of audit store write failures",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "peoplefinder_audit_persist_duration_seconds",
			Help:    "Duration of audit store writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "peoplefinder_audit_circuit_breaker_state",
			Help: "Current audit store circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(d time.Duration) {
	if m != nil {
		m.PersistDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
