package metronome

import (
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/songsheets/rehearsal/internal/synth"
)

// ClickKind distinguishes the three click sounds.
type ClickKind int

const (
	ClickAccent ClickKind = iota
	ClickRegular
	ClickSubdivision
)

func (k ClickKind) String() string {
	switch k {
	case ClickAccent:
		return "accent"
	case ClickRegular:
		return "regular"
	case ClickSubdivision:
		return "subdivision"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ClickKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// classifyClick returns the kind of the click at index within a measure.
func classifyClick(index, clicksPerBeat int) ClickKind {
	switch {
	case index == 0:
		return ClickAccent
	case clicksPerBeat > 1 && index%clicksPerBeat == 0:
		return ClickAccent
	case clicksPerBeat > 1:
		return ClickSubdivision
	default:
		return ClickRegular
	}
}

// RenderClick synthesizes one click of kind from p. Subdivision ticks use
// the regular sound at half gain.
func RenderClick(p SoundPreset, kind ClickKind, sampleRate int) []float32 {
	switch kind {
	case ClickAccent:
		return synth.Click(p.Waveform, p.AccentFreq, p.AccentDuration, p.AccentGain, sampleRate)
	case ClickSubdivision:
		return synth.Click(p.Waveform, p.RegularFreq, p.RegularDuration, p.RegularGain/2, sampleRate)
	default:
		return synth.Click(p.Waveform, p.RegularFreq, p.RegularDuration, p.RegularGain, sampleRate)
	}
}

// clickCache memoizes rendered clicks. Buffers are shared and must not be
// modified.
type clickCache struct {
	c *cache.Cache
}

func newClickCache() *clickCache {
	// No expiration and no janitor: the key space is presets × kinds × rates.
	return &clickCache{c: cache.New(cache.NoExpiration, 0)}
}

func (cc *clickCache) get(p SoundPreset, kind ClickKind, sampleRate int) []float32 {
	key := fmt.Sprintf("%s/%s/%d", p.Name, kind, sampleRate)
	if v, ok := cc.c.Get(key); ok {
		return v.([]float32)
	}
	samples := RenderClick(p, kind, sampleRate)
	cc.c.SetDefault(key, samples)
	return samples
}

func (cc *clickCache) len() int { return cc.c.ItemCount() }
