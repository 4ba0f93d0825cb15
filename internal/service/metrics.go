package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/avkeyd/internal/core"
	"github.com/vyrodovalexey/avkeyd/internal/store"
)

// Metrics holds the Prometheus metrics for service operations.
type Metrics struct {
	operations      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	autoRevocations prometheus.Counter
}

// NewMetrics creates service metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "service",
				Name:      "operations_total",
				Help:      "Total number of service operations by result",
			},
			[]string{"operation", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "avkeyd",
				Subsystem: "service",
				Name:      "operation_duration_seconds",
				Help:      "Service operation duration in seconds",
				Buckets: []float64{
					.0005, .001, .0025, .005, .01,
					.025, .05, .1, .25, .5, 1,
				},
			},
			[]string{"operation"},
		),
		autoRevocations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "service",
				Name:      "auto_revocations_total",
				Help:      "Total number of keys revoked after repeated verification failures",
			},
		),
	}
}

// operation records one completed operation. Nil-safe.
func (m *Metrics) operation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// autoRevoked records one automatic revocation. Nil-safe.
func (m *Metrics) autoRevoked() {
	if m == nil {
		return
	}
	m.autoRevocations.Inc()
}

// resultLabel maps an operation outcome to a bounded metric label. Core
// errors carry their kind; store sentinels get their own labels so
// missing records do not hide behind a generic failure bucket.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := core.KindOf(err); kind != core.KindUnknown {
		return kind.String()
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrAlreadyExists):
		return "already_exists"
	default:
		return "error"
	}
}
