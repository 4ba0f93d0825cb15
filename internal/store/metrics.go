package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments a store backend. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	connectionRetries prometheus.Counter
	connectionErrors  prometheus.Counter
}

// NewMetrics creates store metrics registered with reg. A nil registerer
// leaves the collectors unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "avkeyd_store_operations_total",
				Help: "Total number of record store operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "avkeyd_store_operation_duration_seconds",
				Help:    "Duration of record store operations in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		connectionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avkeyd_store_connection_retries_total",
				Help: "Total number of store connection retry attempts",
			},
		),
		connectionErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "avkeyd_store_connection_errors_total",
				Help: "Total number of store connection errors",
			},
		),
	}
}

// observe records one finished operation.
func (m *Metrics) observe(operation, status string, start time.Time) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) connectionRetry() {
	if m == nil {
		return
	}
	m.connectionRetries.Inc()
}

func (m *Metrics) connectionError() {
	if m == nil {
		return
	}
	m.connectionErrors.Inc()
}
