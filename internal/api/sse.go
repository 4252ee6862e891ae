package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
	"github.com/songsheets/rehearsal/internal/tuner"
)

const (
	sseBuffer       = 128
	sseWriteTimeout = 10 * time.Second

	endpointMetronome = "metronome"
	endpointTuner     = "tuner"
)

// sampleHub fans tuner samples out to stream clients. Sends never block; a
// slow client misses samples.
type sampleHub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]chan tuner.Sample
}

func newSampleHub() *sampleHub {
	return &sampleHub{clients: make(map[uuid.UUID]chan tuner.Sample)}
}

func (h *sampleHub) subscribe() (<-chan tuner.Sample, func()) {
	id := uuid.New()
	ch := make(chan tuner.Sample, sseBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.clients[id]; ok {
			delete(h.clients, id)
			close(c)
		}
	}
}

func (h *sampleHub) publish(s tuner.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- s:
		default:
		}
	}
}

func (h *sampleHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *sampleHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
}

// StreamMetronome handles GET /api/v1/metronome/events
func (s *Server) StreamMetronome(c echo.Context) error {
	events, unsubscribe := s.scheduler.Subscribe(sseBuffer)
	defer unsubscribe()
	return stream(s, c, endpointMetronome, events, func(ev metronome.Event) string {
		return ev.Kind.String()
	})
}

// StreamTuner handles GET /api/v1/tuner/events
func (s *Server) StreamTuner(c echo.Context) error {
	samples, unsubscribe := s.pitch.subscribe()
	defer unsubscribe()
	return stream(s, c, endpointTuner, samples, func(tuner.Sample) string {
		return "pitch"
	})
}

// stream relays ch to the client as server-sent events until the client
// leaves or ch is closed, with a heartbeat while idle.
func stream[T any](s *Server, c echo.Context, endpoint string, ch <-chan T, eventName func(T) string) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	m := s.httpMetrics()
	started := time.Now()
	reason := metrics.SSECloseReasonClosed
	if m != nil {
		m.SSEConnectionStarted(endpoint)
		defer func() { m.SSEConnectionClosed(endpoint, time.Since(started).Seconds(), reason) }()
	}

	logger := s.logger.With("client_id", clientID, "endpoint", endpoint)
	logger.Info("SSE client connected", "ip", c.RealIP())
	defer logger.Info("SSE client disconnected")

	send := func(event string, data any) error {
		if err := writeSSE(c, event, data); err != nil {
			reason = metrics.SSECloseReasonError
			if m != nil {
				m.RecordSSEError(endpoint, "write")
			}
			logger.Debug("SSE write failed, client likely disconnected", "error", err)
			return err
		}
		if m != nil {
			m.RecordSSEMessageSent(endpoint, event)
		}
		return nil
	}

	if err := send("connected", map[string]string{"clientId": clientID}); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	done := c.Request().Context().Done()
	for {
		select {
		case item, ok := <-ch:
			if !ok {
				return nil
			}
			if err := send(eventName(item), item); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if err := send("heartbeat", map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
				return nil
			}
		case <-done:
			reason = metrics.SSECloseReasonCanceled
			return nil
		case <-s.closing:
			return nil
		}
	}
}

// writeSSE writes one event frame and flushes it.
func writeSSE(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	rc := http.NewResponseController(c.Response().Writer)
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))

	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	c.Response().Flush()
	return nil
}
