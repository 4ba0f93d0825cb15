package store

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics

	assert.NotPanics(t, func() {
		m.observe("get", "success", time.Now())
		m.connectionRetry()
		m.connectionError()
	})
}

func TestMetricsObserve(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())

	m.observe("apply", "success", time.Now().Add(-10*time.Millisecond))
	m.observe("apply", "success", time.Now())
	m.connectionRetry()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.operationsTotal.WithLabelValues("apply", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionRetries))
}

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.observe("get", "success", time.Now())
	m.connectionError()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}

	assert.Contains(t, names, "avkeyd_store_operations_total")
	assert.Contains(t, names, "avkeyd_store_operation_duration_seconds")
	assert.Contains(t, names, "avkeyd_store_connection_errors_total")
}
