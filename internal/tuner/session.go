// Package tuner runs microphone pitch detection and reference tones for a
// single tuning session.
package tuner

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/pitch"
	"github.com/songsheets/rehearsal/internal/tone"
)

// DefaultInterval paces the detection loop at about 60 Hz.
const DefaultInterval = 16 * time.Millisecond

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sample is one smoothed detection result. Frequency and Note are only
// meaningful when Valid.
type Sample struct {
	Frequency  float64     `json:"frequency"`
	Valid      bool        `json:"valid"`
	Note       *pitch.Note `json:"note,omitempty"`
	CapturedAt time.Time   `json:"captured_at"`
}

// OnPitchFunc receives every detection cycle's result, present or absent.
type OnPitchFunc func(Sample)

// Clock is the part of the audio clock a session needs.
// *audioclock.Handle implements it.
type Clock interface {
	tone.Clock
	OpenCapture(cfg audioclock.CaptureConfig, sink audioclock.CaptureSink) (audioclock.Capture, error)
}

// Recorder receives tuner metrics. A nil Recorder is ignored.
type Recorder interface {
	Detection(result string, took time.Duration)
	SessionState(state string)
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	DeviceName     string
	WindowSize     int
	Interval       time.Duration
	SmoothingSize  int
	MinSamples     int
	ReferencePitch float64
	Params         *pitch.Params
	Logger         *slog.Logger
	Recorder       Recorder
}

// Session owns one microphone stream and its detection loop.
type Session struct {
	id       uuid.UUID
	clock    Clock
	opts     Options
	params   pitch.Params
	logger   *slog.Logger
	recorder Recorder
	tone     *tone.Generator
	smoother *pitch.Smoother

	mu         sync.Mutex
	state      State
	reference  float64
	analyser   *Analyser
	capture    audioclock.Capture
	sampleRate int
	cancel     context.CancelFunc
	done       chan struct{}
	inCallback *atomic.Bool // set while the loop is inside onPitch
}

// NewSession returns an uninitialized session on clock.
func NewSession(clock Clock, opts Options) *Session {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	s := &Session{
		id:        uuid.New(),
		clock:     clock,
		opts:      opts,
		params:    pitch.DefaultParams(),
		recorder:  opts.Recorder,
		tone:      tone.NewGenerator(clock),
		smoother:  pitch.NewSmoother(opts.SmoothingSize, opts.MinSamples),
		reference: pitch.DefaultReferencePitch,
	}
	if opts.Params != nil {
		s.params = *opts.Params
	}
	if pitch.ValidReferencePitch(opts.ReferencePitch) {
		s.reference = opts.ReferencePitch
	}
	s.logger = opts.Logger
	if s.logger == nil {
		s.logger = logging.ForService("tuner")
	}
	s.logger = s.logger.With("session_id", s.id.String())
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id.String() }

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setStateLocked(st State) {
	s.state = st
	if s.recorder != nil {
		s.recorder.SessionState(st.String())
	}
}

// Initialize opens the microphone and connects it to the analyser. On
// failure the session stays uninitialized and the caller may retry. The
// returned error matches errors.ErrPermissionDenied, errors.ErrDeviceNotFound,
// errors.ErrUnsupportedPlatform or errors.ErrMicrophone.
func (s *Session) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateUninitialized:
	case StateClosed:
		return errors.Newf("tuner session destroyed").
			Component("tuner").
			Category(errors.CategoryState).
			Context("session_id", s.ID()).
			Build()
	default:
		return errors.Newf("tuner session already initialized").
			Component("tuner").
			Category(errors.CategoryState).
			Kind(errors.ErrAlreadyInitialized).
			Context("session_id", s.ID()).
			Context("state", s.state.String()).
			Build()
	}

	analyser := NewAnalyser(s.opts.WindowSize)
	opened := time.Now()
	capture, err := s.clock.OpenCapture(audioclock.CaptureConfig{
		DeviceName:       s.opts.DeviceName,
		Channels:         1,
		EchoCancellation: false,
		AutoGainControl:  false,
		NoiseSuppression: false,
	}, analyser.Write)
	if err != nil {
		kind := audioclock.ClassifyMicrophoneError(err)
		s.logger.Warn("microphone unavailable", "error", err, "kind", kind)
		return errors.New(err).
			Component("tuner").
			Category(errors.CategoryMicrophone).
			Kind(kind).
			Context("session_id", s.ID()).
			Context("device_name", s.opts.DeviceName).
			Timing("open_capture", time.Since(opened)).
			Build()
	}

	s.analyser = analyser
	s.capture = capture
	s.sampleRate = capture.SampleRate()
	s.setStateLocked(StateInitialized)
	s.logger.Info("tuner initialized",
		"device", capture.DeviceName(),
		"sample_rate", s.sampleRate,
		"window", analyser.Size())
	return nil
}

// Start begins the detection loop, calling onPitch once per cycle.
// Starting a running session is a no-op.
func (s *Session) Start(onPitch OnPitchFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning:
		return nil
	case StateInitialized, StateStopped:
	default:
		return errors.Newf("tuner session not initialized").
			Component("tuner").
			Category(errors.CategoryState).
			Kind(errors.ErrNotInitialized).
			Context("session_id", s.ID()).
			Context("state", s.state.String()).
			Build()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.inCallback = new(atomic.Bool)
	s.setStateLocked(StateRunning)

	go s.detectLoop(ctx, s.done, s.inCallback, s.analyser, s.sampleRate, onPitch)
	return nil
}

func (s *Session) detectLoop(ctx context.Context, done chan<- struct{}, inCallback *atomic.Bool, analyser *Analyser, sampleRate int, onPitch OnPitchFunc) {
	defer close(done)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var window []float32
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			window = analyser.Window(window)
			sample := s.detect(window, sampleRate, now)
			if onPitch != nil {
				inCallback.Store(true)
				onPitch(sample)
				inCallback.Store(false)
			}
		}
	}
}

// detect runs one detection cycle. Only the loop goroutine touches the
// smoother.
func (s *Session) detect(window []float32, sampleRate int, at time.Time) Sample {
	began := time.Now()
	raw, ok := s.params.Detect(window, sampleRate)
	freq, valid := s.smoother.Push(raw, ok)

	if s.recorder != nil {
		result := "absent"
		switch {
		case valid:
			result = "pitch"
		case ok:
			result = "settling"
		}
		s.recorder.Detection(result, time.Since(began))
	}

	sample := Sample{Frequency: freq, Valid: valid, CapturedAt: at}
	if valid {
		note := s.Note(freq)
		sample.Note = &note
	}
	return sample
}

// Stop cancels the detection loop and resets the smoother. The microphone
// stays open. Stop waits for the loop to exit unless the loop is inside
// onPitch, which may itself call Stop or Destroy; no callback follows a
// returned Stop either way.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	cancel, done, inCallback := s.cancel, s.done, s.inCallback
	s.cancel, s.done, s.inCallback = nil, nil, nil
	s.setStateLocked(StateStopped)
	s.mu.Unlock()

	cancel()
	if !inCallback.Load() {
		<-done
	}
	s.smoother.Reset()
}

// Destroy stops detection and any reference tone and releases the
// microphone. It is safe to call more than once.
func (s *Session) Destroy() {
	s.Stop()
	s.tone.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.logger.Warn("failed to close microphone", "error", err)
		}
		s.capture = nil
	}
	if s.analyser != nil {
		s.analyser.Reset()
		s.analyser = nil
	}
	s.setStateLocked(StateClosed)
	s.logger.Info("tuner destroyed")
}

// SetReferencePitch sets A4 if hz is within [430, 450] and reports whether
// it applied.
func (s *Session) SetReferencePitch(hz float64) bool {
	if !pitch.ValidReferencePitch(hz) {
		return false
	}
	s.mu.Lock()
	s.reference = hz
	s.mu.Unlock()
	return true
}

// ReferencePitch returns the A4 frequency in use.
func (s *Session) ReferencePitch() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference
}

// Note returns the note nearest freq against the session's reference pitch.
func (s *Session) Note(freq float64) pitch.Note {
	return pitch.NoteFor(freq, s.ReferencePitch())
}

// PlayReference plays a reference tone at freq, replacing any current tone.
// A destroyed session plays nothing.
func (s *Session) PlayReference(freq float64) bool {
	if s.State() == StateClosed {
		return false
	}
	return s.tone.Play(freq)
}

// PlayReferenceNote plays the exact frequency of a MIDI note against the
// session's reference pitch.
func (s *Session) PlayReferenceNote(midi int) bool {
	return s.PlayReference(pitch.MIDIToFrequency(midi, s.ReferencePitch()))
}

// ReferenceTone returns the frequency of the reference tone being played.
func (s *Session) ReferenceTone() (float64, bool) {
	return s.tone.Playing()
}

// StopReference fades out the reference tone.
func (s *Session) StopReference() {
	s.tone.Stop()
}
