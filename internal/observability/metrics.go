package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors, registered against a
// private registry so multiple instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestErrorsTotal *prometheus.CounterVec

	eventsPublished   *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	eventsConsumed    prometheus.Counter
	messagesRejected  prometheus.Counter
	messagesDiscarded prometheus.Counter
	reconnectAttempts prometheus.Counter
}

// NewMetrics initializes and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total HTTP requests that resolved to a domain error.",
		}, []string{"path", "method", "code"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total events published to the bus by routing key.",
		}, []string{"routing_key"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_publish_failures_total",
			Help: "Total publish attempts that failed by routing key.",
		}, []string{"routing_key"}),
		eventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_events_consumed_total",
			Help: "Total status-update events applied to the cache.",
		}),
		messagesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_rejected_total",
			Help: "Total undecodable messages rejected without requeue.",
		}),
		messagesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bus_messages_discarded_total",
			Help: "Total structurally valid but unusable messages acked and dropped.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "broker_reconnect_attempts_total",
			Help: "Total broker reconnect attempts.",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestErrorsTotal,
		m.eventsPublished,
		m.publishFailures,
		m.eventsConsumed,
		m.messagesRejected,
		m.messagesDiscarded,
		m.reconnectAttempts,
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.requestErrorsTotal.WithLabelValues(path, method, code).Inc()
}

// RecordPublish tracks the outcome of a publish attempt.
func (m *Metrics) RecordPublish(routingKey string, ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.eventsPublished.WithLabelValues(routingKey).Inc()
	} else {
		m.publishFailures.WithLabelValues(routingKey).Inc()
	}
}

// RecordConsumed tracks a successfully applied status-update event.
func (m *Metrics) RecordConsumed() {
	if m == nil {
		return
	}
	m.eventsConsumed.Inc()
}

// RecordRejected tracks a poison message rejected without requeue.
func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.messagesRejected.Inc()
}

// RecordDiscarded tracks a malformed envelope acked and dropped.
func (m *Metrics) RecordDiscarded() {
	if m == nil {
		return
	}
	m.messagesDiscarded.Inc()
}

// RecordReconnect tracks a broker reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
