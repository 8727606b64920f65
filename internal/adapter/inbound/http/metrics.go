package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcpglass/mcpglass/internal/domain/session"
)

// Metrics holds all Prometheus metrics for the broker.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ActiveSessions     prometheus.Gauge
	EventsDroppedTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcpglass",
				Name:      "requests_total",
				Help:      "Total number of broker API requests processed",
			},
			[]string{"method", "status"}, // method=GET/POST/DELETE, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcpglass",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcpglass",
				Name:      "active_sessions",
				Help:      "Number of live upstream sessions",
			},
		),
		EventsDroppedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcpglass",
				Name:      "events_dropped_total",
				Help:      "Total session events dropped to queue overflow",
			},
		),
	}
}

// SessionOpened implements session.Observer.
func (m *Metrics) SessionOpened() { m.ActiveSessions.Inc() }

// SessionClosed implements session.Observer.
func (m *Metrics) SessionClosed() { m.ActiveSessions.Dec() }

// EventDropped implements session.Observer.
func (m *Metrics) EventDropped() { m.EventsDroppedTotal.Inc() }

// Compile-time check that Metrics feeds the session registry.
var _ session.Observer = (*Metrics)(nil)
