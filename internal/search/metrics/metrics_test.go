package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBackendLatency("graph", "found", time.Second)
		m.IncrementOutcome("identity", "single")
		m.IncrementAllTimedOut()
		m.ObserveSearchLatency(time.Second)
		m.RecordTokenCacheHit("graph")
		m.RecordTokenCacheMiss("graph")
		m.RecordTokenAcquisition("graph", nil)
		m.RecordCircuitTransition("graph", "open")
	})
}

func TestTokenCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordTokenCacheHit("graph")
	m.RecordTokenCacheHit("graph")
	m.RecordTokenCacheMiss("graph")
	m.RecordTokenAcquisition("graph", nil)
	m.RecordTokenAcquisition("graph", errors.New("401"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokenCache.WithLabelValues("graph", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenCache.WithLabelValues("graph", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenAcquisitions.WithLabelValues("graph", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenAcquisitions.WithLabelValues("graph", "failure")))
}

func TestOutcomeCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.IncrementOutcome("identity", "disambiguation")
	m.IncrementAllTimedOut()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchOutcome.WithLabelValues("identity", "disambiguation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllTimedOut))
}
