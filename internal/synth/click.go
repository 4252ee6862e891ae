package synth

import "math"

const (
	// ClickAttack is the linear attack time of every click.
	ClickAttack = 0.001
	// clickFloor is the relative level an exponential decay ends at.
	clickFloor = 0.001
)

// Click renders a percussive click: a linear attack over ClickAttack to
// gain, then an exponential decay reaching clickFloor*gain at duration.
func Click(w Waveform, freq, duration, gain float64, sampleRate int) []float32 {
	n := int(math.Round(duration * float64(sampleRate)))
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)

	sr := float64(sampleRate)
	decay := max(duration-ClickAttack, 1/sr)
	k := math.Log(clickFloor) / decay

	for i := range out {
		t := float64(i) / sr
		var env float64
		if t < ClickAttack {
			env = gain * t / ClickAttack
		} else {
			env = gain * math.Exp(k*(t-ClickAttack))
		}
		out[i] = float32(env * w.At(freq*t))
	}
	return out
}
