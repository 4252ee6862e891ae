package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/songsheets/rehearsal/internal/errors"
)

// ErrorMetrics counts enhanced errors as they are built.
type ErrorMetrics struct {
	errorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics. Call Hook to start
// counting.
func NewErrorMetrics(registry *prometheus.Registry) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Errors built by component and category",
			},
			[]string{"component", "category"},
		),
	}
	if err := registry.Register(m.errorsTotal); err != nil {
		return nil, fmt.Errorf("failed to register error metrics: %w", err)
	}
	return m, nil
}

// Observe counts one error.
func (m *ErrorMetrics) Observe(ee *errors.EnhancedError) {
	component := ee.Component
	if component == "" {
		component = errors.ComponentUnknown
	}
	m.errorsTotal.WithLabelValues(component, string(ee.ErrorCategory())).Inc()
}

// Hook registers Observe as a global error hook.
func (m *ErrorMetrics) Hook() {
	errors.AddErrorHook(m.Observe)
}
