// Package synth generates the metronome click and reference-tone signals.
package synth

import (
	"fmt"
	"math"
)

// Waveform is an oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Square
	Triangle
	Sawtooth
)

var waveformNames = [...]string{"sine", "square", "triangle", "sawtooth"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveformNames[w]
}

// ParseWaveform returns the waveform named s.
func ParseWaveform(s string) (Waveform, bool) {
	for i, name := range waveformNames {
		if name == s {
			return Waveform(i), true
		}
	}
	return Sine, false
}

// MarshalText implements encoding.TextMarshaler.
func (w Waveform) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Waveform) UnmarshalText(b []byte) error {
	v, ok := ParseWaveform(string(b))
	if !ok {
		return fmt.Errorf("unknown waveform %q", b)
	}
	*w = v
	return nil
}

// At returns the waveform value at phase, measured in cycles.
func (w Waveform) At(phase float64) float64 {
	p := phase - math.Floor(phase)
	switch w {
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 1 - 4*math.Abs(p-0.5)
	case Sawtooth:
		return 2*p - 1
	default:
		return math.Sin(2 * math.Pi * p)
	}
}
