package audioclock

import "sync"

// Voice is a sound placed on the output timeline. Render adds the voice's
// contribution for the frames [start, start+len(out)) into out and reports
// whether the voice has more to play after this block.
type Voice interface {
	Render(out []float32, start int64, sampleRate int) bool
}

// Mixer sums active voices into the output block.
type Mixer struct {
	mu     sync.Mutex
	voices []Voice
}

// NewMixer returns an empty mixer.
func NewMixer() *Mixer {
	return &Mixer{voices: make([]Voice, 0, 16)}
}

// Add schedules v.
func (m *Mixer) Add(v Voice) {
	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()
}

// Len returns the number of voices not yet finished.
func (m *Mixer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Clear drops every voice.
func (m *Mixer) Clear() {
	m.mu.Lock()
	clear(m.voices)
	m.voices = m.voices[:0]
	m.mu.Unlock()
}

// Render overwrites out with the mix of every voice, hard-clipped to [-1, 1].
func (m *Mixer) Render(out []float32, start int64, sampleRate int) {
	clear(out)

	m.mu.Lock()
	kept := m.voices[:0]
	for _, v := range m.voices {
		if v.Render(out, start, sampleRate) {
			kept = append(kept, v)
		}
	}
	clear(m.voices[len(kept):])
	m.voices = kept
	m.mu.Unlock()

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}
}

// SampleVoice plays a pre-rendered mono buffer from frame At.
type SampleVoice struct {
	At      int64
	Samples []float32
}

// Render implements Voice.
func (v *SampleVoice) Render(out []float32, start int64, _ int) bool {
	end := v.At + int64(len(v.Samples))
	blockEnd := start + int64(len(out))
	if blockEnd <= v.At {
		return true
	}
	if start >= end {
		return false
	}

	from := max(v.At, start)
	to := min(end, blockEnd)
	for f := from; f < to; f++ {
		out[f-start] += v.Samples[f-v.At]
	}
	return to < end
}
