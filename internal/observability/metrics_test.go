package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// because every instance owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := NewMetrics()
			if err != nil {
				errs <- err
				return
			}
			if m.Metronome == nil || m.Tuner == nil || m.AudioClock == nil || m.HTTP == nil || m.MQTT == nil {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("NewMetrics: %v", err)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Metronome.ClickScheduled("accent", 0)
	m.Tuner.Detection("pitch", 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `metronome_clicks_scheduled_total{kind="accent"} 1`)
	assert.Contains(t, string(body), `tuner_detections_total{result="pitch"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
	assert.NotNil(t, m.Registry())
}
