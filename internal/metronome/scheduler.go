// Package metronome implements a lookahead click scheduler on the audio
// clock. A coarse driver tick places every click that falls inside the
// lookahead window at its exact audio time, so host timer jitter never
// reaches the sound.
package metronome

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/logging"
)

const (
	DefaultTickInterval  = 25 * time.Millisecond
	DefaultScheduleAhead = 100 * time.Millisecond

	// startDelay offsets the first click from the clock time at Start.
	startDelay = 0.05
	// testSoundDelay is how far ahead PlayTestSound places its click.
	testSoundDelay = 0.05
)

// Clock is the part of the audio clock the scheduler needs.
// *audioclock.Handle implements it.
type Clock interface {
	CurrentTime() float64
	SampleRate() int
	State() audioclock.State
	ScheduleSamples(at float64, samples []float32) bool
}

// Recorder receives scheduler metrics. A nil Recorder is ignored.
type Recorder interface {
	ClickScheduled(kind string, lead time.Duration)
	MeasureCompleted()
	EventDropped()
	SetRunning(running bool)
}

// OnBeatFunc receives the main beat index within the measure.
type OnBeatFunc func(beat, beatsPerMeasure int)

// OnMeasureFunc receives the count of completed measures.
type OnMeasureFunc func(measure int)

// RunState is the scheduler lifecycle state.
type RunState int

const (
	Stopped RunState = iota
	Running
)

func (s RunState) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is a snapshot of the scheduling position.
type State struct {
	Run           RunState `json:"state"`
	NextEventTime float64  `json:"next_event_time"`
	ClickIndex    int      `json:"click_index"`
	MeasureCount  int      `json:"measure_count"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTiming overrides the driver period and the lookahead window.
func WithTiming(tick, ahead time.Duration) Option {
	return func(s *Scheduler) {
		if tick > 0 {
			s.tickInterval = tick
		}
		if ahead > 0 {
			s.scheduleAhead = ahead
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithConfig sets the initial configuration through the validating setters.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.pendingConfig = &cfg }
}

// Scheduler is the metronome engine.
type Scheduler struct {
	clock         Clock
	tickInterval  time.Duration
	scheduleAhead time.Duration
	logger        *slog.Logger
	recorder      Recorder
	pendingConfig *Config

	clicks     *clickCache
	events     *broadcaster
	dispatcher *dispatcher

	mu            sync.Mutex
	cfg           Config
	preset        SoundPreset
	run           RunState
	nextEventTime float64
	clickIndex    int
	measureCount  int
	onBeat        OnBeatFunc
	onMeasure     OnMeasureFunc
	cancel        context.CancelFunc
	done          chan struct{}
}

// New returns a stopped scheduler on clock.
func New(clock Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:         clock,
		tickInterval:  DefaultTickInterval,
		scheduleAhead: DefaultScheduleAhead,
		clicks:        newClickCache(),
		dispatcher:    newDispatcher(),
		cfg:           DefaultConfig(),
	}
	s.preset, _ = LookupPreset(s.cfg.Preset)

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.ForService("metronome")
	}
	s.events = newBroadcaster(func() {
		if s.recorder != nil {
			s.recorder.EventDropped()
		}
	})

	if c := s.pendingConfig; c != nil {
		s.SetTempo(c.Tempo)
		s.SetTimeSignature(c.TimeSignature)
		s.SetSubdivision(c.Subdivision)
		s.SetSoundPreset(c.Preset)
		s.pendingConfig = nil
	}
	return s
}

// Config returns the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// State returns the current scheduling position.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Run:           s.run,
		NextEventTime: s.nextEventTime,
		ClickIndex:    s.clickIndex,
		MeasureCount:  s.measureCount,
	}
}

// Running reports whether the driver is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run == Running
}

// SetTempo stores bpm clamped to [MinTempo, MaxTempo].
func (s *Scheduler) SetTempo(bpm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Tempo = ClampTempo(bpm)
}

// SetTimeSignature applies ts if it is in the catalog and restarts the
// accent phase. The measure count is kept. It reports whether ts applied.
func (s *Scheduler) SetTimeSignature(ts TimeSignature) bool {
	if !ts.Supported() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TimeSignature = ts
	s.clickIndex = 0
	return true
}

// SetSubdivision applies sub if it is in the catalog and restarts the
// accent phase. The measure count is kept. It reports whether sub applied.
func (s *Scheduler) SetSubdivision(sub Subdivision) bool {
	if !sub.Supported() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Subdivision = sub
	s.clickIndex = 0
	return true
}

// SetSoundPreset selects the named preset for clicks scheduled from now on.
// It reports whether name is a known preset.
func (s *Scheduler) SetSoundPreset(name string) bool {
	p, ok := LookupPreset(name)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Preset = p.Name
	s.preset = p
	return true
}

// OnMeasureComplete registers fn for measure completions. Pass nil to
// remove it.
func (s *Scheduler) OnMeasureComplete(fn OnMeasureFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMeasure = fn
}

// Subscribe returns a channel of scheduler events and a function that
// unsubscribes and closes it. buffer <= 0 selects a default size.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// Start begins scheduling with the first click 50 ms after the current
// clock time. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(onBeat OnBeatFunc) {
	s.mu.Lock()
	if s.run == Running {
		s.mu.Unlock()
		return
	}
	s.run = Running
	s.onBeat = onBeat
	s.nextEventTime = s.clock.CurrentTime() + startDelay

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	cfg := s.cfg
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SetRunning(true)
	}
	s.logger.Info("metronome started",
		"tempo", cfg.Tempo,
		"time_signature", cfg.TimeSignature.String(),
		"subdivision", cfg.Subdivision.String(),
		"preset", cfg.Preset)

	go s.drive(ctx, done)
}

// drive ticks until ctx is cancelled.
func (s *Scheduler) drive(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Stop halts the driver, resets the position and reports beat 0 to the
// OnBeat callback. Clicks already handed to the clock still sound.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.run != Running {
		s.mu.Unlock()
		return
	}
	s.run = Stopped
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.clickIndex = 0
	s.measureCount = 0
	onBeat := s.onBeat
	cfg := s.cfg
	now := s.clock.CurrentTime()
	s.dispatcher.cancel()
	s.mu.Unlock()

	cancel()
	<-done

	if s.recorder != nil {
		s.recorder.SetRunning(false)
	}
	s.events.publish(Event{
		Kind:            EventStopped,
		Time:            now,
		BeatsPerMeasure: cfg.TimeSignature.BeatsPerMeasure,
		Tempo:           cfg.Tempo,
	})
	if onBeat != nil {
		onBeat(0, cfg.TimeSignature.BeatsPerMeasure)
	}
	s.logger.Info("metronome stopped")
}

// Close stops the scheduler and closes every subscriber channel.
func (s *Scheduler) Close() {
	s.Stop()
	s.events.closeAll()
}

// Tick schedules every click due before the end of the lookahead window
// and returns how many it placed. It does nothing unless the scheduler and
// the clock are both running. The driver calls it periodically.
func (s *Scheduler) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != Running || s.clock.State() != audioclock.StateRunning {
		return 0
	}

	now := s.clock.CurrentTime()
	horizon := now + s.scheduleAhead.Seconds()

	n := 0
	for s.nextEventTime < horizon {
		s.scheduleNext(now)
		n++
	}
	return n
}

// scheduleNext places the click at nextEventTime and advances the position.
// Called with s.mu held.
func (s *Scheduler) scheduleNext(now float64) {
	at := s.nextEventTime
	cfg := s.cfg
	clicksPerBeat := cfg.Subdivision.ClicksPerBeat()
	index := s.clickIndex
	kind := classifyClick(index, clicksPerBeat)
	mainBeat := index%clicksPerBeat == 0
	beat := index / clicksPerBeat

	s.clock.ScheduleSamples(at, s.clicks.get(s.preset, kind, s.clock.SampleRate()))

	if s.recorder != nil {
		s.recorder.ClickScheduled(kind.String(), time.Duration((at-now)*float64(time.Second)))
	}
	s.events.publish(Event{
		Kind:            EventClick,
		Time:            at,
		ClickIndex:      index,
		Beat:            beat,
		BeatsPerMeasure: cfg.TimeSignature.BeatsPerMeasure,
		MainBeat:        mainBeat,
		Click:           kind,
		Measure:         s.measureCount,
		Tempo:           cfg.Tempo,
	})
	if mainBeat && s.onBeat != nil {
		onBeat, bpm := s.onBeat, cfg.TimeSignature.BeatsPerMeasure
		s.dispatcher.after(at-now, func() { onBeat(beat, bpm) })
	}

	interval := cfg.SubdivisionInterval()
	s.nextEventTime += interval
	s.clickIndex++

	if s.clickIndex >= cfg.ClicksPerMeasure() {
		s.clickIndex = 0
		s.measureCount++
		measure := s.measureCount

		if s.recorder != nil {
			s.recorder.MeasureCompleted()
		}
		s.events.publish(Event{
			Kind:            EventMeasureComplete,
			Time:            s.nextEventTime,
			BeatsPerMeasure: cfg.TimeSignature.BeatsPerMeasure,
			Measure:         measure,
			Tempo:           cfg.Tempo,
		})
		if onMeasure := s.onMeasure; onMeasure != nil {
			s.dispatcher.after(s.nextEventTime-now, func() { onMeasure(measure) })
		}
		s.logger.Debug("measure complete", "measure", measure, "at", s.nextEventTime)
	}
}

// PlayTestSound schedules one accented click of the current preset 50 ms
// ahead without touching the scheduling position. It reports whether the
// clock accepted it.
func (s *Scheduler) PlayTestSound() bool {
	s.mu.Lock()
	preset := s.preset
	s.mu.Unlock()

	samples := s.clicks.get(preset, ClickAccent, s.clock.SampleRate())
	return s.clock.ScheduleSamples(s.clock.CurrentTime()+testSoundDelay, samples)
}

// Subscribers returns the number of live event subscriptions.
func (s *Scheduler) Subscribers() int { return s.events.count() }
