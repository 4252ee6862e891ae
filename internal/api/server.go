// Package api serves the HTTP control surface: metronome control, tuner
// control, live event streams and metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/songsheets/rehearsal/internal/api/middleware"
	"github.com/songsheets/rehearsal/internal/buildinfo"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/observability"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
	"github.com/songsheets/rehearsal/internal/tuner"
)

const (
	DefaultListen    = "127.0.0.1:8089"
	DefaultHeartbeat = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP server for the rehearsal engine.
type Server struct {
	echo      *echo.Echo
	listen    string
	heartbeat time.Duration
	logger    *slog.Logger
	startTime time.Time

	scheduler *metronome.Scheduler
	tuner     *tuner.Session
	metrics   *observability.Metrics
	pitch     *sampleHub

	closeOnce sync.Once
	closing   chan struct{}
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithListen sets the listen address.
func WithListen(addr string) ServerOption {
	return func(s *Server) {
		if addr != "" {
			s.listen = addr
		}
	}
}

// WithHeartbeat sets the event stream keep-alive period.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithTuner enables the tuner routes on session.
func WithTuner(session *tuner.Session) ServerOption {
	return func(s *Server) { s.tuner = session }
}

// WithMetrics enables /metrics and request instrumentation.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New builds the server and registers every route.
func New(scheduler *metronome.Scheduler, opts ...ServerOption) *Server {
	s := &Server{
		listen:    DefaultListen,
		heartbeat: DefaultHeartbeat,
		startTime: time.Now(),
		scheduler: scheduler,
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.ForService("api")
	}
	s.pitch = newSampleHub()

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.logger))
	s.echo.Use(mw.NewMetrics(s.httpMetrics()))
	s.echo.Use(echomw.BodyLimit("64K"))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")

	m := v1.Group("/metronome")
	m.GET("", s.GetMetronome)
	m.PUT("", s.UpdateMetronome)
	m.POST("/start", s.StartMetronome)
	m.POST("/stop", s.StopMetronome)
	m.POST("/test-sound", s.PlayTestSound)
	m.GET("/presets", s.ListPresets)
	m.GET("/events", s.StreamMetronome)

	t := v1.Group("/tuner", s.requireTuner)
	t.GET("", s.GetTuner)
	t.POST("/start", s.StartTuner)
	t.POST("/stop", s.StopTuner)
	t.PUT("/reference", s.SetReferencePitch)
	t.POST("/reference-tone", s.PlayReferenceTone)
	t.DELETE("/reference-tone", s.StopReferenceTone)
	t.GET("/events", s.StreamTuner)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "healthy",
		"version":         buildinfo.Get().Version,
		"metronome":       s.scheduler.State().Run.String(),
		"uptime_seconds":  uptime.Seconds(),
		"sse_subscribers": s.scheduler.Subscribers() + s.pitch.count(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.listen)
		errCh <- s.echo.Start(s.listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes event streams and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.pitch.closeAll()
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}
