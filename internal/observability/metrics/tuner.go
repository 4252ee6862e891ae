package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tuner session states reported through SessionState.
var tunerStates = []string{"uninitialized", "initialized", "running", "stopped", "closed"}

// TunerMetrics records pitch detection cycles. It satisfies tuner.Recorder.
type TunerMetrics struct {
	detections        *prometheus.CounterVec
	detectionDuration prometheus.Histogram
	sessionState      *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewTunerMetrics creates and registers tuner metrics.
func NewTunerMetrics(registry *prometheus.Registry) (*TunerMetrics, error) {
	m := &TunerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register tuner metrics: %w", err)
	}
	return m, nil
}

func (m *TunerMetrics) initMetrics() {
	m.detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tuner_detections_total",
			Help: "Detection cycles by result (pitch, settling, absent)",
		},
		[]string{"result"},
	)

	m.detectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tuner_detection_duration_seconds",
			Help:    "Time spent analysing one capture window",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	m.sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tuner_session_state",
			Help: "Current tuner session state (1 for the active state)",
		},
		[]string{"state"},
	)

	m.collectors = []prometheus.Collector{
		m.detections,
		m.detectionDuration,
		m.sessionState,
	}
}

// Describe implements the Collector interface
func (m *TunerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *TunerMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Detection counts one detection cycle and observes how long it took.
func (m *TunerMetrics) Detection(result string, took time.Duration) {
	m.detections.WithLabelValues(result).Inc()
	m.detectionDuration.Observe(took.Seconds())
}

// SessionState marks state as the active session state.
func (m *TunerMetrics) SessionState(state string) {
	setOneHot(m.sessionState, tunerStates, state)
}

// setOneHot sets the gauge for active to 1 and every other known label to 0.
func setOneHot(g *prometheus.GaugeVec, known []string, active string) {
	for _, s := range known {
		if s == active {
			continue
		}
		g.WithLabelValues(s).Set(0)
	}
	g.WithLabelValues(active).Set(1)
}
