package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/observability"
	"github.com/songsheets/rehearsal/internal/tuner"
)

const testRate = 8000

type testEnv struct {
	server    *Server
	scheduler *metronome.Scheduler
	session   *tuner.Session
	backend   *audioclock.Offline
}

func newTestEnv(t *testing.T, withTuner bool) *testEnv {
	t.Helper()

	backend := audioclock.NewOffline(testRate)
	h, err := audioclock.NewProvider(audioclock.OfflineFactory(backend)).Acquire()
	require.NoError(t, err)
	require.NoError(t, h.Resume(context.Background()))
	t.Cleanup(func() { _ = h.Release() })

	sched := metronome.New(h, metronome.WithTiming(time.Hour, 100*time.Millisecond))
	t.Cleanup(sched.Close)

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	env := &testEnv{scheduler: sched, backend: backend}
	opts := []ServerOption{WithMetrics(m), WithHeartbeat(time.Hour)}
	if withTuner {
		env.session = tuner.NewSession(h, tuner.Options{Interval: 5 * time.Millisecond})
		t.Cleanup(env.session.Destroy)
		opts = append(opts, WithTuner(env.session))
	}
	env.server = New(sched, opts...)
	t.Cleanup(func() { _ = env.server.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	rec := httptest.NewRecorder()
	e.server.Echo().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestGetMetronome(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/metronome", "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[map[string]any](t, rec)
	assert.InDelta(t, 120, resp["tempo"], 0)
	assert.Equal(t, "4/4", resp["time_signature"])
	assert.Equal(t, "quarter", resp["subdivision"])
	assert.Equal(t, metronome.PresetClassic, resp["preset"])

	position, ok := resp["position"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stopped", position["state"])
	assert.NotContains(t, resp, "ignored")
}

func TestUpdateMetronome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		wantTempo   int
		wantMeter   string
		wantSub     string
		wantIgnored []string
	}{
		{
			name:      "all fields",
			body:      `{"tempo":72,"time_signature":"6/8","subdivision":"eighth","preset":"woodBlock"}`,
			wantTempo: 72, wantMeter: "6/8", wantSub: "eighth",
		},
		{
			name:      "tempo clamped high",
			body:      `{"tempo":400}`,
			wantTempo: metronome.MaxTempo, wantMeter: "4/4", wantSub: "quarter",
		},
		{
			name:      "tempo clamped low",
			body:      `{"tempo":1}`,
			wantTempo: metronome.MinTempo, wantMeter: "4/4", wantSub: "quarter",
		},
		{
			name:        "unsupported values ignored",
			body:        `{"time_signature":"11/8","subdivision":"quintuplet","preset":"cowbell"}`,
			wantTempo:   metronome.DefaultTempo,
			wantMeter:   "4/4",
			wantSub:     "quarter",
			wantIgnored: []string{"time_signature", "subdivision", "preset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, false)

			rec := env.do(t, http.MethodPut, "/api/v1/metronome", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[MetronomeResponse](t, rec)
			assert.Equal(t, tt.wantTempo, resp.Tempo)
			assert.Equal(t, tt.wantMeter, resp.TimeSignature)
			assert.Equal(t, tt.wantSub, resp.Subdivision)
			assert.Equal(t, tt.wantIgnored, resp.Ignored)

			cfg := env.scheduler.Config()
			assert.Equal(t, tt.wantTempo, cfg.Tempo)
			assert.Equal(t, tt.wantMeter, cfg.TimeSignature.String())
		})
	}
}

func TestUpdateMetronomeRejectsMalformedBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPut, "/api/v1/metronome", `{"tempo":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Len(t, resp.CorrelationID, 8)
}

func TestStartStopMetronome(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/metronome/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, metronome.Running, decode[MetronomeResponse](t, rec).Position.Run)
	assert.True(t, env.scheduler.Running())

	rec = env.do(t, http.MethodPost, "/api/v1/metronome/start", "")
	require.Equal(t, http.StatusOK, rec.Code, "starting twice is harmless")

	rec = env.do(t, http.MethodPost, "/api/v1/metronome/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[MetronomeResponse](t, rec)
	assert.Equal(t, metronome.Stopped, resp.Position.Run)
	assert.Equal(t, 0, resp.Position.ClickIndex)
	assert.False(t, env.scheduler.Running())
}

func TestPlayTestSound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/metronome/test-sound", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"played": true}, decode[map[string]bool](t, rec))

	out := env.backend.AdvanceSeconds(0.2)
	assert.Greater(t, peakOf(out), float32(0.1))
}

func TestListPresets(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/api/v1/metronome/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	presets := decode[[]map[string]any](t, rec)
	require.Len(t, presets, len(metronome.Presets()))
	assert.Equal(t, metronome.PresetClassic, presets[0]["name"])
	assert.Equal(t, "sine", presets[0]["waveform"])
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "stopped", health["metronome"])
	assert.Equal(t, "dev", health["version"])

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="/health",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestTunerDisabled(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, false)

	for _, path := range []string{"/api/v1/tuner", "/api/v1/tuner/events"} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestTunerLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodGet, "/api/v1/tuner", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[TunerResponse](t, rec)
	assert.Equal(t, env.session.ID(), resp.SessionID)
	assert.Equal(t, "uninitialized", resp.State)
	assert.InDelta(t, 440, resp.ReferencePitch, 1e-9)

	rec = env.do(t, http.MethodPost, "/api/v1/tuner/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "running", decode[TunerResponse](t, rec).State)
	assert.Equal(t, 1, env.backend.Captures())

	rec = env.do(t, http.MethodPost, "/api/v1/tuner/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decode[TunerResponse](t, rec).State)

	rec = env.do(t, http.MethodPost, "/api/v1/tuner/start", "")
	require.Equal(t, http.StatusOK, rec.Code, "restart reuses the open microphone")
	assert.Equal(t, "running", decode[TunerResponse](t, rec).State)
	assert.Equal(t, 1, env.backend.Captures())
}

func TestTunerReferencePitch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPut, "/api/v1/tuner/reference", `{"reference_pitch":442}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 442, decode[TunerResponse](t, rec).ReferencePitch, 1e-9)

	rec = env.do(t, http.MethodPut, "/api/v1/tuner/reference", `{"reference_pitch":400}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, 442, env.session.ReferencePitch(), 1e-9)
}

func TestTunerReferenceTone(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/api/v1/tuner/reference-tone", `{"midi":69}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, true, resp["played"])
	assert.InDelta(t, 440, resp["frequency"], 1e-9)

	rec = env.do(t, http.MethodPost, "/api/v1/tuner/reference-tone", `{"frequency":196}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 196, decode[map[string]any](t, rec)["frequency"], 1e-9)

	rec = env.do(t, http.MethodPost, "/api/v1/tuner/reference-tone", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/v1/tuner/reference-tone", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestTunerReferenceToneOutOfBand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, true)

	require.True(t, env.session.PlayReference(440))

	for _, body := range []string{
		`{"midi":20000}`,
		`{"midi":-200}`,
		`{"frequency":10}`,
		`{"frequency":96000}`,
		`{"frequency":-5}`,
	} {
		rec := env.do(t, http.MethodPost, "/api/v1/tuner/reference-tone", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	freq, ok := env.session.ReferenceTone()
	require.True(t, ok)
	assert.InDelta(t, 440, freq, 1e-9)
}

func TestTunerMicrophoneErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cause error
		code  int
	}{
		{"permission", errors.NewStd("access denied"), http.StatusForbidden},
		{"missing device", errors.NewStd("capture device not found"), http.StatusNotFound},
		{"other", errors.NewStd("device busy"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, true)
			env.backend.CaptureError = tt.cause

			rec := env.do(t, http.MethodPost, "/api/v1/tuner/start", "")
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, "uninitialized", env.session.State().String())
		})
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.Newf("bad tempo").Category(errors.CategoryValidation).Build(), http.StatusBadRequest},
		{"state", errors.Newf("not ready").Category(errors.CategoryState).Build(), http.StatusConflict},
		{"already initialized", errors.ErrAlreadyInitialized, http.StatusConflict},
		{"unsupported", errors.ErrUnsupportedPlatform, http.StatusNotImplemented},
		{"plain", errors.NewStd("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func peakOf(samples []float32) float32 {
	var p float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		p = max(p, s)
	}
	return p
}
