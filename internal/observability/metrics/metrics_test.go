package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/errors"
)

func TestMetronomeMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetronomeMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ClickScheduled("accent", 40*time.Millisecond)
	m.ClickScheduled("regular", 10*time.Millisecond)
	m.ClickScheduled("regular", 5*time.Millisecond)
	m.MeasureCompleted()
	m.EventDropped()
	m.SetRunning(true)

	assert.InDelta(t, 1, testutil.ToFloat64(m.clicksScheduled.WithLabelValues("accent")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.clicksScheduled.WithLabelValues("regular")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.measures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.droppedEvents), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.running), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.scheduleLead))

	m.SetRunning(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.running), 0)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewMetronomeMetrics(registry)
	require.NoError(t, err)
	_, err = NewMetronomeMetrics(registry)
	assert.Error(t, err)
}

func TestTunerMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewTunerMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Detection("pitch", time.Millisecond)
	m.Detection("absent", time.Millisecond)
	m.Detection("absent", time.Millisecond)
	m.SessionState("initialized")
	m.SessionState("running")

	assert.InDelta(t, 1, testutil.ToFloat64(m.detections.WithLabelValues("pitch")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.detections.WithLabelValues("absent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionState.WithLabelValues("running")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.sessionState.WithLabelValues("initialized")), 0)
}

func TestAudioClockMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewAudioClockMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.ObserveState(audioclock.StateSuspended)
	m.ObserveState(audioclock.StateRunning)

	assert.InDelta(t, 1, testutil.ToFloat64(m.state.WithLabelValues("running")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.state.WithLabelValues("suspended")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.transitions.WithLabelValues("suspended")), 0)
	assert.Equal(t, len(clockStates), testutil.CollectAndCount(m.state))
}

func TestErrorMetricsObserve(t *testing.T) {
	t.Parallel()

	m, err := NewErrorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	// Observe directly; Hook mutates global state shared with other tests.
	ee := errors.Newf("no device").
		Component("tuner").
		Category(errors.CategoryMicrophone).
		Build()
	m.Observe(ee)
	m.Observe(errors.Newf("bare").Build())

	assert.InDelta(t, 1, testutil.ToFloat64(m.errorsTotal.WithLabelValues("tuner", "microphone")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.errorsTotal))
}

func TestSSEConnectionTracking(t *testing.T) {
	t.Parallel()

	m, err := NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SSEConnectionStarted("metronome")
	m.SSEConnectionStarted("tuner")
	assert.InDelta(t, 2, m.ActiveSSEConnections(), 0)

	m.SSEConnectionClosed("tuner", 3, "weird")
	assert.InDelta(t, 1, m.ActiveSSEConnections(), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sseTotalConnections.WithLabelValues("tuner", SSECloseReasonError)), 0)

	m.RecordHTTPRequest("GET", "/api/v1/metronome", 200, 0.01)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/metronome", "200")), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.IncrementMessagesDelivered("measure")
	m.StartPublishTimer().ObserveDuration()

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesDelivered.WithLabelValues("measure")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.PublishLatency))

	m.UpdateConnectionStatus(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ConnectionStatus), 0)
}
