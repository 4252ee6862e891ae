// Package metrics provides custom Prometheus metrics for the rehearsal engine.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetronomeMetrics records click scheduling activity. It satisfies
// metronome.Recorder.
type MetronomeMetrics struct {
	clicksScheduled *prometheus.CounterVec
	scheduleLead    prometheus.Histogram
	measures        prometheus.Counter
	droppedEvents   prometheus.Counter
	running         prometheus.Gauge

	collectors []prometheus.Collector
}

// NewMetronomeMetrics creates and registers metronome metrics.
func NewMetronomeMetrics(registry *prometheus.Registry) (*MetronomeMetrics, error) {
	m := &MetronomeMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metronome metrics: %w", err)
	}
	return m, nil
}

func (m *MetronomeMetrics) initMetrics() {
	m.clicksScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metronome_clicks_scheduled_total",
			Help: "Total number of clicks handed to the audio clock",
		},
		[]string{"kind"},
	)

	m.scheduleLead = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metronome_schedule_lead_seconds",
			Help:    "How far ahead of the audio clock each click was scheduled",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
	)

	m.measures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metronome_measures_completed_total",
		Help: "Total number of completed measures",
	})

	m.droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metronome_events_dropped_total",
		Help: "Events not delivered because a subscriber buffer was full",
	})

	m.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metronome_running",
		Help: "Whether the metronome is running (1) or stopped (0)",
	})

	m.collectors = []prometheus.Collector{
		m.clicksScheduled,
		m.scheduleLead,
		m.measures,
		m.droppedEvents,
		m.running,
	}
}

// Describe implements the Collector interface
func (m *MetronomeMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MetronomeMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// ClickScheduled counts a click of the given kind and observes its lead time.
func (m *MetronomeMetrics) ClickScheduled(kind string, lead time.Duration) {
	m.clicksScheduled.WithLabelValues(kind).Inc()
	if lead >= 0 {
		m.scheduleLead.Observe(lead.Seconds())
	}
}

// MeasureCompleted counts a completed measure.
func (m *MetronomeMetrics) MeasureCompleted() {
	m.measures.Inc()
}

// EventDropped counts an event a subscriber missed.
func (m *MetronomeMetrics) EventDropped() {
	m.droppedEvents.Inc()
}

// SetRunning updates the running gauge.
func (m *MetronomeMetrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
		return
	}
	m.running.Set(0)
}
