package secrets

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments provider operations. A nil *Metrics disables
// recording.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	healthy    *prometheus.GaugeVec
}

// NewMetrics registers the secrets collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "avkeyd_secrets_operation_total",
			Help: "Secrets provider operations by provider, operation and result.",
		}, []string{"provider", "operation", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avkeyd_secrets_operation_duration_seconds",
			Help:    "Secrets provider operation latency in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"provider", "operation"}),
		healthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "avkeyd_secrets_provider_healthy",
			Help: "Whether the secrets provider last reported healthy.",
		}, []string{"provider"}),
	}
}

// operation records one provider call.
func (m *Metrics) operation(provider, op string, start time.Time, err error) {
	if m == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(provider, op, result).Inc()
	m.duration.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
}

// health records the outcome of a health check.
func (m *Metrics) health(provider string, healthy bool) {
	if m == nil {
		return
	}

	value := 0.0
	if healthy {
		value = 1.0
	}
	m.healthy.WithLabelValues(provider).Set(value)
}
