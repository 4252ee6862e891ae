// Package pitch estimates the fundamental frequency of monophonic audio
// and maps frequencies onto equal-tempered notes.
package pitch

import "math"

// Params are the detector thresholds.
type Params struct {
	RMSThreshold    float64 // noise gate, fraction of full scale
	GoodCorrelation float64 // a lag must exceed this to be accepted
	MinCorrelation  float64 // best correlation needed to report a pitch
	MinFrequency    float64 // Hz, inclusive
	MaxFrequency    float64 // Hz, inclusive
}

// DefaultParams returns the standard thresholds.
func DefaultParams() Params {
	return Params{
		RMSThreshold:    0.01,
		GoodCorrelation: 0.9,
		MinCorrelation:  0.01,
		MinFrequency:    20,
		MaxFrequency:    5000,
	}
}

// Detect estimates the pitch of samples with the default thresholds.
func Detect(samples []float32, sampleRate int) (float64, bool) {
	return DefaultParams().Detect(samples, sampleRate)
}

// Detect returns the fundamental frequency of samples, or false when the
// buffer is below the noise gate or no lag correlates strongly enough.
//
// For each lag from 1 to len/2 the correlation is 1 minus the mean absolute
// difference between the first half of the buffer and the buffer shifted by
// that lag. The search keeps the best lag whose correlation exceeds
// GoodCorrelation and rises over the previous lag, and stops at the first
// fall after that, so the first strong peak wins over later harmonics.
func (p Params) Detect(samples []float32, sampleRate int) (float64, bool) {
	n := len(samples)
	if n < 2 || sampleRate <= 0 {
		return 0, false
	}

	if RMS(samples) < p.RMSThreshold {
		return 0, false
	}

	half := n / 2
	maxLag := half
	// Lags past the lowest reportable frequency can only produce an
	// out-of-range result, so the search stops one lag after it.
	if p.MinFrequency > 0 {
		maxLag = min(half, int(float64(sampleRate)/p.MinFrequency)+1)
	}

	bestLag := -1
	bestCorr := 0.0
	lastCorr := 1.0
	found := false

	for lag := 1; lag <= maxLag; lag++ {
		var diff float64
		for i := range half {
			diff += math.Abs(float64(samples[i] - samples[i+lag]))
		}
		corr := 1 - diff/float64(half)

		if corr > p.GoodCorrelation && corr > lastCorr {
			found = true
			if corr > bestCorr {
				bestCorr = corr
				bestLag = lag
			}
		} else if found {
			break
		}
		lastCorr = corr
	}

	if bestLag <= 0 || bestCorr <= p.MinCorrelation {
		return 0, false
	}

	freq := float64(sampleRate) / float64(bestLag)
	if freq < p.MinFrequency || freq > p.MaxFrequency {
		return 0, false
	}
	return freq, true
}

// RMS returns the root mean square of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
