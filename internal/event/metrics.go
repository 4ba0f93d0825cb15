package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the event pipeline. A nil *Metrics disables
// instrumentation.
type Metrics struct {
	publishedTotal    *prometheus.CounterVec
	droppedTotal      prometheus.Counter
	webhookDeliveries *prometheus.CounterVec
	webhookDuration   prometheus.Histogram
	streamClients     prometheus.Gauge
	streamDropped     prometheus.Counter
}

// NewMetrics creates event metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		publishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of events published to the bus",
			},
			[]string{"type"},
		),
		droppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of events dropped because the bus buffer was full",
			},
		),
		webhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		webhookDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Webhook delivery duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "stream_clients",
				Help:      "Number of connected websocket stream clients",
			},
		),
		streamDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "avkeyd",
				Subsystem: "events",
				Name:      "stream_dropped_total",
				Help:      "Total number of events dropped on slow stream clients",
			},
		),
	}
}

func (m *Metrics) published(eventType string) {
	if m == nil {
		return
	}
	m.publishedTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.droppedTotal.Inc()
}

func (m *Metrics) webhookDelivery(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(outcome).Inc()
	m.webhookDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) streamConnected() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *Metrics) streamDisconnected() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}

func (m *Metrics) streamDrop() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}
