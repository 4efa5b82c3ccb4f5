package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	InboundMessages  *prometheus.CounterVec
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	ChatAPIErrors    *prometheus.CounterVec
	DedupeDropped    prometheus.Counter
}

// NewMetrics registers on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live conversation sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by kind.",
		}, []string{"kind"}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Document pipeline runs by feature and outcome.",
		}, []string{"feature", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_ms",
			Help:      "Pipeline wall time from fetch to delivery in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000, 60000},
		}, []string{"feature"}),
		ChatAPIErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_api_errors_total",
			Help:      "Failed chat platform API calls by operation.",
		}, []string{"op"}),
		DedupeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedupe_dropped_total",
			Help:      "Webhook messages dropped as redeliveries.",
		}),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) Inbound(kind string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservePipeline(feature, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(feature, status).Inc()
	m.PipelineDuration.WithLabelValues(feature).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ChatAPIError(op string) {
	if m == nil {
		return
	}
	m.ChatAPIErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Deduped() {
	if m == nil {
		return
	}
	m.DedupeDropped.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific registry, used when metrics are not on the
// default one.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
