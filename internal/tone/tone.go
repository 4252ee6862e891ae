// Package tone plays a sustained reference tone with click-free gain ramps.
package tone

import (
	"math"
	"sync"
	"time"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/synth"
)

const (
	// Gain is the sustained level of the reference tone.
	Gain = 0.3
	// Ramp is the fade-in and fade-out time.
	Ramp = 20 * time.Millisecond
)

// Clock is the part of the audio clock the generator needs.
type Clock interface {
	CurrentTime() float64
	SampleRate() int
	FrameAt(t float64) int64
	Schedule(v audioclock.Voice) bool
}

// Generator plays at most one tone at a time.
type Generator struct {
	clock Clock
	wave  synth.Waveform

	mu      sync.Mutex
	current *synth.Oscillator
}

// NewGenerator returns a sine tone generator on clock.
func NewGenerator(clock Clock) *Generator {
	return &Generator{clock: clock, wave: synth.Sine}
}

// Playable reports whether freq is a finite frequency below the Nyquist
// limit of sampleRate.
func Playable(freq float64, sampleRate int) bool {
	if math.IsNaN(freq) || math.IsInf(freq, 0) {
		return false
	}
	return freq > 0 && freq < float64(sampleRate)/2
}

// Play stops any playing tone and starts freq, fading in over Ramp. It
// reports whether the tone was started; frequencies the clock cannot
// reproduce are refused and leave the current tone playing.
func (g *Generator) Play(freq float64) bool {
	if !Playable(freq, g.clock.SampleRate()) {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopLocked()

	now := g.clock.FrameAt(g.clock.CurrentTime())
	osc := synth.NewOscillator(g.wave, freq, now)
	osc.RampTo(Gain, now, g.rampFrames())
	if !g.clock.Schedule(osc) {
		return false
	}
	g.current = osc
	return true
}

// Stop fades the current tone out over Ramp and ends it. Stopping with no
// tone playing is a no-op.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
}

// Playing returns the frequency of the current tone.
func (g *Generator) Playing() (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return 0, false
	}
	return g.current.Frequency(), true
}

func (g *Generator) stopLocked() {
	if g.current == nil {
		return
	}
	now := g.clock.FrameAt(g.clock.CurrentTime())
	ramp := g.rampFrames()
	g.current.RampTo(0, now, ramp)
	g.current.StopAt(now + ramp)
	g.current = nil
}

func (g *Generator) rampFrames() int64 {
	return int64(Ramp.Seconds() * float64(g.clock.SampleRate()))
}
