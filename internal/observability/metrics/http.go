package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// HTTPMetrics contains Prometheus metrics for the control API.
type HTTPMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// SSE (Server-Sent Events) metrics
	sseActiveConnections  prometheus.Gauge
	sseTotalConnections   *prometheus.CounterVec
	sseConnectionDuration *prometheus.HistogramVec
	sseMessagesSent       *prometheus.CounterVec
	sseErrors             *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.sseActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_active_connections",
		Help: "Number of open SSE connections",
	})

	m.sseTotalConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_connections_total",
			Help: "SSE connection lifecycle events by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	m.sseConnectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sse_connection_duration_seconds",
			Help:    "How long SSE clients stayed connected",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"endpoint"},
	)

	m.sseMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_messages_sent_total",
			Help: "SSE messages written by endpoint and type",
		},
		[]string{"endpoint", "message_type"},
	)

	m.sseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sse_errors_total",
			Help: "SSE write failures by endpoint and type",
		},
		[]string{"endpoint", "error_type"},
	)
}

func (m *HTTPMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sseActiveConnections,
		m.sseTotalConnections,
		m.sseConnectionDuration,
		m.sseMessagesSent,
		m.sseErrors,
	}
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SSE connection close reasons. Unknown reasons are recorded as error.
const (
	SSECloseReasonClosed   = "closed"
	SSECloseReasonCanceled = "canceled"
	SSECloseReasonError    = "error"
)

// SSEConnectionStarted increments active connections and total connections counter
func (m *HTTPMetrics) SSEConnectionStarted(endpoint string) {
	m.sseActiveConnections.Inc()
	m.sseTotalConnections.WithLabelValues(endpoint, "established").Inc()
}

// SSEConnectionClosed decrements active connections and records duration
func (m *HTTPMetrics) SSEConnectionClosed(endpoint string, duration float64, reason string) {
	switch reason {
	case SSECloseReasonClosed, SSECloseReasonCanceled, SSECloseReasonError:
	default:
		reason = SSECloseReasonError
	}

	m.sseActiveConnections.Dec()
	m.sseTotalConnections.WithLabelValues(endpoint, reason).Inc()
	m.sseConnectionDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordSSEMessageSent records an SSE message sent
func (m *HTTPMetrics) RecordSSEMessageSent(endpoint, messageType string) {
	m.sseMessagesSent.WithLabelValues(endpoint, messageType).Inc()
}

// RecordSSEError records an SSE error
func (m *HTTPMetrics) RecordSSEError(endpoint, errorType string) {
	m.sseErrors.WithLabelValues(endpoint, errorType).Inc()
}

// ActiveSSEConnections returns the current number of open SSE connections.
func (m *HTTPMetrics) ActiveSSEConnections() float64 {
	metric := &dto.Metric{}
	if err := m.sseActiveConnections.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
