package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wabadash"

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpInFlight     prometheus.Gauge
	webhookRequests  *prometheus.CounterVec
	messagesIngested *prometheus.CounterVec
	ingestFailures   *prometheus.CounterVec
	statusUpdates    *prometheus.CounterVec
	graphCalls       *prometheus.CounterVec
	graphLatency     *prometheus.HistogramVec
	activeMonitors   prometheus.Gauge
	monitorChecks    *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		webhookRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by outcome.",
		}, []string{"outcome"}),
		messagesIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Inbound messages stored, by normalized type.",
		}, []string{"message_type"}),
		ingestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Inbound message processing failures by stage.",
		}, []string{"stage"}),
		statusUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_status_updates_total",
			Help:      "Delivery status callbacks by status.",
		}, []string{"status"}),
		graphCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_api_calls_total",
			Help:      "Provider API calls by operation and status code.",
		}, []string{"operation", "status_code"}),
		graphLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "graph_api_call_duration_seconds",
			Help:      "Provider API call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		activeMonitors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "template_monitors_active",
			Help:      "Template submissions currently being monitored.",
		}),
		monitorChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_status_checks_total",
			Help:      "Template status checks by outcome.",
		}, []string{"outcome"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the message broker by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement
func (m *Metrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}

func (m *Metrics) RecordWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordIngested(messageType string) {
	if m == nil {
		return
	}
	m.messagesIngested.WithLabelValues(messageType).Inc()
}

func (m *Metrics) RecordIngestFailure(stage string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.statusUpdates.WithLabelValues(status).Inc()
}

// ObserveGraphCall matches whatsapp.ObserveFunc
func (m *Metrics) ObserveGraphCall(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.graphCalls.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.graphLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.activeMonitors.Inc()
}

func (m *Metrics) MonitorStopped() {
	if m == nil {
		return
	}
	m.activeMonitors.Dec()
}

func (m *Metrics) RecordMonitorCheck(outcome string) {
	if m == nil {
		return
	}
	m.monitorChecks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordEvent(outcome string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(outcome).Inc()
}
