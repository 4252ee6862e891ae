package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/songsheets/rehearsal/internal/audioclock"
)

var clockStates = []string{
	audioclock.StateUninitialized.String(),
	audioclock.StateRunning.String(),
	audioclock.StateSuspended.String(),
	audioclock.StateClosed.String(),
}

// AudioClockMetrics tracks the shared audio clock lifecycle.
type AudioClockMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewAudioClockMetrics creates and registers audio clock metrics.
func NewAudioClockMetrics(registry *prometheus.Registry) (*AudioClockMetrics, error) {
	m := &AudioClockMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register audio clock metrics: %w", err)
	}
	return m, nil
}

func (m *AudioClockMetrics) initMetrics() {
	m.state = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audioclock_state",
			Help: "Current audio clock state (1 for the active state)",
		},
		[]string{"state"},
	)
	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audioclock_state_transitions_total",
			Help: "Audio clock state transitions by target state",
		},
		[]string{"state"},
	)
	m.collectors = []prometheus.Collector{m.state, m.transitions}
}

// Describe implements the Collector interface
func (m *AudioClockMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *AudioClockMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// ObserveState records a clock state change. Pass it to
// audioclock.WithStateObserver.
func (m *AudioClockMetrics) ObserveState(s audioclock.State) {
	name := s.String()
	m.transitions.WithLabelValues(name).Inc()
	setOneHot(m.state, clockStates, name)
}
