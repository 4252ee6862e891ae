package synth

import "sync"

// Oscillator is a continuous tone voice with linear gain ramps, placed on
// an absolute frame timeline. It is safe to adjust while rendering.
type Oscillator struct {
	mu     sync.Mutex
	wave   Waveform
	freq   float64
	start  int64
	stopAt int64 // -1 until stopped
	phase  float64
	ramp   gainRamp
}

type gainRamp struct {
	from, to   float64
	start, end int64
}

func (r gainRamp) at(frame int64) float64 {
	switch {
	case frame <= r.start:
		return r.from
	case frame >= r.end:
		return r.to
	default:
		return r.from + (r.to-r.from)*float64(frame-r.start)/float64(r.end-r.start)
	}
}

// NewOscillator returns a silent oscillator that starts at frame start.
func NewOscillator(w Waveform, freq float64, start int64) *Oscillator {
	return &Oscillator{wave: w, freq: freq, start: start, stopAt: -1}
}

// Frequency returns the oscillator frequency in Hz.
func (o *Oscillator) Frequency() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.freq
}

// RampTo moves the gain linearly from its value at frame at to target over
// frames frames.
func (o *Oscillator) RampTo(target float64, at, frames int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ramp = gainRamp{from: o.ramp.at(at), to: target, start: at, end: at + max(frames, 0)}
}

// GainAt returns the gain envelope value at frame.
func (o *Oscillator) GainAt(frame int64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ramp.at(frame)
}

// StopAt ends the voice at frame.
func (o *Oscillator) StopAt(frame int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopAt = frame
}

// Render implements audioclock.Voice.
func (o *Oscillator) Render(out []float32, start int64, sampleRate int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.freq / float64(sampleRate)
	for i := range out {
		f := start + int64(i)
		if f < o.start {
			continue
		}
		if o.stopAt >= 0 && f >= o.stopAt {
			return false
		}
		out[i] += float32(o.ramp.at(f) * o.wave.At(o.phase))
		o.phase += step
		if o.phase >= 1 {
			o.phase -= 1
		}
	}
	return o.stopAt < 0 || start+int64(len(out)) < o.stopAt
}
