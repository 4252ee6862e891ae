package metronome

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songsheets/rehearsal/internal/audioclock"
)

const testRate = 44100

// runningClock returns a resumed clock on an offline backend.
func runningClock(t *testing.T) (*audioclock.Handle, *audioclock.Offline) {
	t.Helper()
	backend := audioclock.NewOffline(testRate)
	h, err := audioclock.NewProvider(audioclock.OfflineFactory(backend)).Acquire()
	require.NoError(t, err)
	require.NoError(t, h.Resume(context.Background()))
	t.Cleanup(func() { _ = h.Release() })
	return h, backend
}

// newTestScheduler builds a scheduler whose driver only ticks on Start;
// tests advance time and tick by hand.
func newTestScheduler(t *testing.T, clock Clock, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithTiming(time.Hour, DefaultScheduleAhead)}, opts...)
	s := New(clock, opts...)
	t.Cleanup(s.Close)
	return s
}

type collected struct {
	clicks   []Event
	measures []Event
}

func drain(ch <-chan Event, into *collected) {
	for {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case EventClick:
				into.clicks = append(into.clicks, ev)
			case EventMeasureComplete:
				into.measures = append(into.measures, ev)
			}
		default:
			return
		}
	}
}

// runClicks advances the clock in 10 ms steps until n clicks were emitted.
func runClicks(t *testing.T, s *Scheduler, backend *audioclock.Offline, ch <-chan Event, n int) collected {
	t.Helper()
	var got collected
	for range 100000 {
		drain(ch, &got)
		if len(got.clicks) >= n {
			return got
		}
		backend.Advance(testRate / 100)
		s.Tick()
	}
	t.Fatalf("only %d of %d clicks emitted", len(got.clicks), n)
	return got
}

func TestSchedulerQuarterNotesAt120(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)
	events, _ := s.Subscribe(256)

	s.Start(nil)
	got := runClicks(t, s, backend, events, 9)

	t0 := got.clicks[0].Time
	assert.InDelta(t, 0.05, t0, 1e-9)
	for i, ev := range got.clicks[:9] {
		assert.InDelta(t, t0+0.5*float64(i), ev.Time, 1e-9, "click %d", i)
		assert.Equal(t, i%4, ev.ClickIndex)
		assert.Equal(t, i%4 == 0, ev.Click == ClickAccent, "click %d", i)
		assert.True(t, ev.MainBeat)
	}

	require.Len(t, got.measures, 2)
	assert.Equal(t, 1, got.measures[0].Measure)
	assert.InDelta(t, t0+2.0, got.measures[0].Time, 1e-9)
	assert.Equal(t, 2, got.measures[1].Measure)
	assert.InDelta(t, t0+4.0, got.measures[1].Time, 1e-9)
}

func TestSchedulerClicksAreSampleAccurate(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock, WithConfig(Config{
		Tempo: 120, TimeSignature: TimeSignature{4, 4}, Subdivision: Quarter, Preset: PresetHiHat,
	}))

	s.Start(nil)
	s.Tick()
	out := backend.AdvanceSeconds(0.5)
	s.Tick()
	out = append(out, backend.AdvanceSeconds(0.3)...)

	// First click at 50 ms: frames before it are silent, the attack begins on it.
	first := int(0.05 * testRate)
	for i := range first {
		require.Zero(t, out[i], "frame %d", i)
	}
	second := int(0.55 * testRate)
	for i := first + 2000; i < second; i++ {
		require.Zero(t, out[i], "frame %d", i)
	}
	assert.NotZero(t, out[second+1])
}

func TestSchedulerCompoundTime(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)
	require.True(t, s.SetTimeSignature(TimeSignature{6, 8}))
	events, _ := s.Subscribe(256)

	s.Start(nil)
	got := runClicks(t, s, backend, events, 12)

	for i := 1; i < 12; i++ {
		assert.InDelta(t, 0.75, got.clicks[i].Time-got.clicks[i-1].Time, 1e-9)
	}
	require.Len(t, got.measures, 2)
	assert.Equal(t, 6, got.measures[0].BeatsPerMeasure)
	assert.Equal(t, 2, s.State().MeasureCount)
}

func TestSchedulerEighthAccents(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)
	require.True(t, s.SetSubdivision(Eighth))
	events, _ := s.Subscribe(256)

	s.Start(nil)
	got := runClicks(t, s, backend, events, 8)

	for i, ev := range got.clicks[:8] {
		accented := ev.Click == ClickAccent
		assert.Equal(t, i%2 == 0, accented, "click %d", i)
		assert.Equal(t, i%2 == 0, ev.MainBeat, "click %d", i)
		assert.Equal(t, i/2, ev.Beat, "click %d", i)
		if !accented {
			assert.Equal(t, ClickSubdivision, ev.Click)
		}
	}
	assert.InDelta(t, 0.25, got.clicks[1].Time-got.clicks[0].Time, 1e-9)
}

func TestSchedulerWaltzMeasureCount(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock, WithConfig(Config{
		Tempo: 90, TimeSignature: TimeSignature{3, 4}, Subdivision: Quarter, Preset: PresetClassic,
	}))
	events, _ := s.Subscribe(256)

	s.Start(nil)
	got := runClicks(t, s, backend, events, 12)

	assert.Len(t, got.clicks, 12)
	assert.Equal(t, 4, s.State().MeasureCount)
	assert.Len(t, got.measures, 4)
}

func TestSchedulerSettersKeepMeasureCount(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)
	events, _ := s.Subscribe(256)

	s.Start(nil)
	runClicks(t, s, backend, events, 5)
	st := s.State()
	require.Equal(t, 1, st.MeasureCount)
	require.Equal(t, 1, st.ClickIndex)

	assert.True(t, s.SetTimeSignature(TimeSignature{3, 4}))
	st = s.State()
	assert.Zero(t, st.ClickIndex)
	assert.Equal(t, 1, st.MeasureCount)

	assert.False(t, s.SetTimeSignature(TimeSignature{11, 8}))
	assert.Equal(t, TimeSignature{3, 4}, s.Config().TimeSignature)

	assert.False(t, s.SetSubdivision(Subdivision(7)))
	assert.Equal(t, Quarter, s.Config().Subdivision)

	assert.False(t, s.SetSoundPreset("cowbell"))
	assert.True(t, s.SetSoundPreset(PresetRimshot))
	assert.Equal(t, PresetRimshot, s.Config().Preset)

	s.SetTempo(500)
	assert.Equal(t, MaxTempo, s.Config().Tempo)
	s.SetTempo(12)
	assert.Equal(t, MinTempo, s.Config().Tempo)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)

	s.Start(nil)
	s.Tick()
	next := s.State().NextEventTime
	require.InDelta(t, 0.55, next, 1e-12)

	backend.AdvanceSeconds(0.02)
	s.Start(nil)
	assert.InDelta(t, next, s.State().NextEventTime, 1e-12)
	assert.True(t, s.Running())
}

func TestSchedulerSuspendedClockSchedulesNothing(t *testing.T) {
	t.Parallel()

	backend := audioclock.NewOffline(testRate)
	h, err := audioclock.NewProvider(audioclock.OfflineFactory(backend)).Acquire()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })

	s := newTestScheduler(t, h)
	s.Start(nil)
	assert.Zero(t, s.Tick())
	assert.Zero(t, s.State().ClickIndex)
	assert.False(t, s.PlayTestSound())

	require.NoError(t, h.Resume(context.Background()))
	s.Tick()
	assert.Equal(t, 1, s.State().ClickIndex)
}

func TestSchedulerStopResets(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock, WithConfig(Config{
		Tempo: 200, TimeSignature: TimeSignature{5, 4}, Subdivision: Quarter, Preset: PresetClassic,
	}))
	events, unsubscribe := s.Subscribe(256)
	defer unsubscribe()

	var mu sync.Mutex
	var beats [][2]int
	s.Start(func(beat, beatsPerMeasure int) {
		mu.Lock()
		beats = append(beats, [2]int{beat, beatsPerMeasure})
		mu.Unlock()
	})
	runClicks(t, s, backend, events, 7)

	s.Stop()
	st := s.State()
	assert.Equal(t, Stopped, st.Run)
	assert.Zero(t, st.ClickIndex)
	assert.Zero(t, st.MeasureCount)
	assert.Zero(t, s.dispatcher.pending(), "pending callbacks are cancelled")

	mu.Lock()
	assert.Contains(t, beats, [2]int{0, 5})
	mu.Unlock()

	var stopped bool
	for ev := range drainAll(events) {
		if ev.Kind == EventStopped {
			stopped = true
		}
	}
	assert.True(t, stopped)

	s.Stop()
	assert.Equal(t, 0, s.Tick(), "stopped scheduler does not tick")
}

func drainAll(ch <-chan Event) func(func(Event) bool) {
	return func(yield func(Event) bool) {
		for {
			select {
			case ev, ok := <-ch:
				if !ok || !yield(ev) {
					return
				}
			default:
				return
			}
		}
	}
}

func TestSchedulerStopWhileClockSuspendedReportsBeatZero(t *testing.T) {
	t.Parallel()

	backend := audioclock.NewOffline(testRate)
	h, err := audioclock.NewProvider(audioclock.OfflineFactory(backend)).Acquire()
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })

	s := newTestScheduler(t, h)
	var calls [][2]int
	s.Start(func(beat, beatsPerMeasure int) {
		calls = append(calls, [2]int{beat, beatsPerMeasure})
	})
	s.Stop()
	assert.Equal(t, [][2]int{{0, 4}}, calls)
}

func TestSchedulerDispatchesCallbacks(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock, WithConfig(Config{
		Tempo: 240, TimeSignature: TimeSignature{2, 4}, Subdivision: Eighth, Preset: PresetClassic,
	}))
	events, _ := s.Subscribe(256)

	beats := make(chan int, 64)
	measures := make(chan int, 64)
	s.OnMeasureComplete(func(m int) { measures <- m })
	s.Start(func(beat, _ int) { beats <- beat })

	// 240 BPM eighths: one measure is 4 clicks over 0.5 s.
	runClicks(t, s, backend, events, 4)
	backend.AdvanceSeconds(0.2)
	s.Tick()

	select {
	case m := <-measures:
		assert.Equal(t, 1, m)
	case <-time.After(2 * time.Second):
		t.Fatal("measure callback not delivered")
	}

	seen := map[int]bool{}
	assert.Eventually(t, func() bool {
		for {
			select {
			case b := <-beats:
				seen[b] = true
			default:
				return seen[0] && seen[1]
			}
		}
	}, 2*time.Second, 10*time.Millisecond, "only main beats reach OnBeat")
}

func TestPlayTestSoundLeavesStateAlone(t *testing.T) {
	t.Parallel()

	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock)
	backend.AdvanceSeconds(1)

	before := s.State()
	require.True(t, s.PlayTestSound())
	assert.Equal(t, before, s.State())
	assert.Equal(t, 1, clock.ActiveVoices())

	out := backend.AdvanceSeconds(0.1)
	at := int(0.05 * testRate)
	assert.Zero(t, out[at-1])
	assert.NotZero(t, out[at+1])
}

type fakeRecorder struct {
	mu       sync.Mutex
	clicks   map[string]int
	measures int
	dropped  int
	running  []bool
}

func (f *fakeRecorder) ClickScheduled(kind string, lead time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clicks == nil {
		f.clicks = map[string]int{}
	}
	f.clicks[kind]++
}

func (f *fakeRecorder) MeasureCompleted() {
	f.mu.Lock()
	f.measures++
	f.mu.Unlock()
}

func (f *fakeRecorder) EventDropped() {
	f.mu.Lock()
	f.dropped++
	f.mu.Unlock()
}

func (f *fakeRecorder) SetRunning(running bool) {
	f.mu.Lock()
	f.running = append(f.running, running)
	f.mu.Unlock()
}

func TestSchedulerRecordsMetricsAndDrops(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	clock, backend := runningClock(t)
	s := newTestScheduler(t, clock, WithRecorder(rec))
	events, _ := s.Subscribe(256)
	_, _ = s.Subscribe(1) // never read

	s.Start(nil)
	runClicks(t, s, backend, events, 8)
	s.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.clicks["accent"])
	assert.Equal(t, 6, rec.clicks["regular"])
	assert.Equal(t, 2, rec.measures)
	assert.Positive(t, rec.dropped)
	assert.Equal(t, []bool{true, false}, rec.running)
}
