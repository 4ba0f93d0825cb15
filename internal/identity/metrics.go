package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments control-plane authentication.
type Metrics struct {
	attemptsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics creates authentication metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "auth",
				Name:      "attempts_total",
				Help:      "Total number of authentication attempts by method and result.",
			},
			[]string{"method", "result"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "avkeyd",
				Subsystem: "auth",
				Name:      "duration_seconds",
				Help:      "Authentication duration in seconds.",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method"},
		),
	}
}

// attempt records one authentication attempt.
func (m *Metrics) attempt(method, result string, start time.Time) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(method, result).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
