// Package observability wires the Prometheus collectors for the rehearsal
// engine into one registry.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Metronome  *metrics.MetronomeMetrics
	Tuner      *metrics.TunerMetrics
	AudioClock *metrics.AudioClockMetrics
	Errors     *metrics.ErrorMetrics
	HTTP       *metrics.HTTPMetrics
	MQTT       *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry that
// also carries the Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metronomeMetrics, err := metrics.NewMetronomeMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create metronome metrics: %w", err)
	}

	tunerMetrics, err := metrics.NewTunerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create tuner metrics: %w", err)
	}

	clockMetrics, err := metrics.NewAudioClockMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio clock metrics: %w", err)
	}

	errorMetrics, err := metrics.NewErrorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create error metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Metronome:  metronomeMetrics,
		Tuner:      tunerMetrics,
		AudioClock: clockMetrics,
		Errors:     errorMetrics,
		HTTP:       httpMetrics,
		MQTT:       mqttMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logging.ForService("metrics").Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
