// Package audioclock owns the platform audio context. A Provider hands out
// reference-counted handles to a single shared clock whose time is derived
// from the number of frames the output device has rendered.
package audioclock

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
)

// State is the lifecycle state of the shared clock.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateSuspended
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// BackendFactory creates the backend for a new clock.
type BackendFactory func() (Backend, error)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithStateObserver registers a function called on every clock state change.
func WithStateObserver(fn func(State)) Option {
	return func(p *Provider) { p.observer = fn }
}

// Provider lazily creates the shared clock and tracks how many handles
// reference it. The zero value is not usable; use NewProvider.
type Provider struct {
	mu       sync.Mutex
	factory  BackendFactory
	clock    *clock
	refs     int
	logger   *slog.Logger
	observer func(State)
}

// NewProvider returns a provider that builds clocks with factory.
func NewProvider(factory BackendFactory, opts ...Option) *Provider {
	p := &Provider{factory: factory}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.ForService("audioclock")
	}
	return p
}

// Acquire returns a handle to the shared clock, creating it if absent or
// closed. A new clock starts suspended.
func (p *Provider) Acquire() (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.clock == nil || p.clock.State() == StateClosed {
		if p.factory == nil {
			return nil, errors.Newf("no audio backend configured").
				Component("audioclock").
				Category(errors.CategoryAudioClock).
				Kind(errors.ErrUnsupportedPlatform).
				Build()
		}
		backend, err := p.factory()
		if err != nil {
			if errors.Is(err, errors.ErrUnsupportedPlatform) {
				return nil, err
			}
			return nil, errors.New(err).
				Component("audioclock").
				Category(errors.CategoryAudioDevice).
				Context("operation", "create_backend").
				Build()
		}
		p.clock = newClock(p, backend)
		p.refs = 0
		p.logger.Info("audio clock created",
			"backend", backend.Name(),
			"sample_rate", backend.SampleRate())
	}

	p.refs++
	return &Handle{c: p.clock}, nil
}

// State reports the shared clock state, StateUninitialized when none exists.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clock == nil {
		return StateUninitialized
	}
	return p.clock.State()
}

// Refs reports the number of live handles.
func (p *Provider) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

func (p *Provider) release(c *clock) error {
	p.mu.Lock()
	if p.clock != c {
		p.mu.Unlock()
		return nil
	}
	p.refs--
	last := p.refs <= 0
	if last {
		p.clock = nil
		p.refs = 0
	}
	p.mu.Unlock()

	if last {
		return c.close()
	}
	return nil
}

func (p *Provider) forget(c *clock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clock == c {
		p.clock = nil
		p.refs = 0
	}
}

func (p *Provider) notify(s State) {
	if p.observer != nil {
		p.observer(s)
	}
}

// clock is the shared state behind every Handle.
type clock struct {
	provider   *Provider
	backend    Backend
	sampleRate int
	mixer      *Mixer

	frames atomic.Int64
	state  atomic.Int32

	lifecycle sync.Mutex
}

func newClock(p *Provider, backend Backend) *clock {
	c := &clock{
		provider:   p,
		backend:    backend,
		sampleRate: backend.SampleRate(),
		mixer:      NewMixer(),
	}
	c.setState(StateSuspended)
	return c
}

func (c *clock) State() State { return State(c.state.Load()) }

func (c *clock) setState(s State) {
	c.state.Store(int32(s))
	c.provider.notify(s)
}

// render is called by the backend on its audio thread.
func (c *clock) render(out []float32) {
	start := c.frames.Load()
	c.mixer.Render(out, start, c.sampleRate)
	c.frames.Add(int64(len(out)))
}

func (c *clock) close() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.State() == StateClosed {
		return nil
	}
	c.setState(StateClosed)
	c.mixer.Clear()
	if err := c.backend.Close(); err != nil {
		return errors.New(err).
			Component("audioclock").
			Category(errors.CategoryAudioDevice).
			Context("operation", "close_backend").
			Context("backend", c.backend.Name()).
			Build()
	}
	c.provider.logger.Info("audio clock closed", "backend", c.backend.Name())
	return nil
}

// Handle is one holder's reference to the shared clock.
type Handle struct {
	c        *clock
	released atomic.Bool
}

func closedErr(op string) error {
	return errors.Newf("audio clock is closed").
		Component("audioclock").
		Category(errors.CategoryAudioClock).
		Kind(errors.ErrClockClosed).
		Context("operation", op).
		Build()
}

// CurrentTime returns seconds of audio rendered since the clock was created.
// It only advances while the clock is running.
func (h *Handle) CurrentTime() float64 {
	return float64(h.c.frames.Load()) / float64(h.c.sampleRate)
}

// SampleRate returns the output sample rate.
func (h *Handle) SampleRate() int { return h.c.sampleRate }

// State returns the shared clock state.
func (h *Handle) State() State { return h.c.State() }

// BackendName returns the name of the backend driving the clock.
func (h *Handle) BackendName() string { return h.c.backend.Name() }

// Resume starts the output device. Resuming through any handle resumes the
// clock for every holder.
func (h *Handle) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := h.c
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	switch c.State() {
	case StateClosed:
		return closedErr("resume")
	case StateRunning:
		return nil
	}

	if err := c.backend.Start(c.render); err != nil {
		return errors.New(err).
			Component("audioclock").
			Category(errors.CategoryAudioDevice).
			Context("operation", "start_backend").
			Context("backend", c.backend.Name()).
			Build()
	}
	c.setState(StateRunning)
	return nil
}

// Suspend pauses the output device. Time stops advancing.
func (h *Handle) Suspend() error {
	c := h.c
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	switch c.State() {
	case StateClosed:
		return closedErr("suspend")
	case StateSuspended:
		return nil
	}

	if err := c.backend.Stop(); err != nil {
		return errors.New(err).
			Component("audioclock").
			Category(errors.CategoryAudioDevice).
			Context("operation", "stop_backend").
			Build()
	}
	c.setState(StateSuspended)
	return nil
}

// Close releases the hardware for every holder. The next Acquire builds a
// new clock.
func (h *Handle) Close() error {
	h.c.provider.forget(h.c)
	return h.c.close()
}

// Release drops this handle's reference. The last release closes the clock.
// Releasing twice is a no-op.
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	return h.c.provider.release(h.c)
}

// FrameAt converts a clock time in seconds to an absolute frame position.
func (h *Handle) FrameAt(t float64) int64 {
	return int64(math.Round(t * float64(h.c.sampleRate)))
}

// Schedule adds a voice to the output mixer. It reports false, doing
// nothing, unless the clock is running.
func (h *Handle) Schedule(v Voice) bool {
	if h.c.State() != StateRunning {
		return false
	}
	h.c.mixer.Add(v)
	return true
}

// ScheduleSamples plays a mono buffer starting exactly at time at.
func (h *Handle) ScheduleSamples(at float64, samples []float32) bool {
	return h.Schedule(&SampleVoice{At: h.FrameAt(at), Samples: samples})
}

// ActiveVoices returns the number of voices still sounding or pending.
func (h *Handle) ActiveVoices() int { return h.c.mixer.Len() }

// OpenCapture opens a microphone stream on the clock's audio context.
func (h *Handle) OpenCapture(cfg CaptureConfig, sink CaptureSink) (Capture, error) {
	if h.c.State() == StateClosed {
		return nil, closedErr("open_capture")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = h.c.sampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return h.c.backend.OpenCapture(cfg, sink)
}
