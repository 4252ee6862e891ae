package synth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveformAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wave  Waveform
		phase float64
		want  float64
	}{
		{Sine, 0.25, 1},
		{Sine, 0.75, -1},
		{Square, 0.1, 1},
		{Square, 0.6, -1},
		{Triangle, 0, -1},
		{Triangle, 0.5, 1},
		{Sawtooth, 0, -1},
		{Sawtooth, 1.75, 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.wave.At(tt.phase), 1e-9, "%s at %v", tt.wave, tt.phase)
	}
}

func TestWaveformText(t *testing.T) {
	t.Parallel()

	w, ok := ParseWaveform("triangle")
	require.True(t, ok)
	assert.Equal(t, Triangle, w)

	_, ok = ParseWaveform("noise")
	assert.False(t, ok)

	var decoded Waveform
	require.NoError(t, decoded.UnmarshalText([]byte("square")))
	assert.Equal(t, Square, decoded)
	assert.Error(t, decoded.UnmarshalText([]byte("pulse")))
}

func TestClickEnvelope(t *testing.T) {
	t.Parallel()

	const sr = 48000
	click := Click(Square, 1000, 0.05, 0.8, sr)
	require.Len(t, click, 2400)

	assert.Zero(t, click[0], "attack starts from silence")

	// Square wave is +1 for the first half cycle, so samples track the envelope.
	peak := click[int(ClickAttack*sr)]
	assert.InDelta(t, 0.8, math.Abs(float64(peak)), 0.01)

	tail := math.Abs(float64(click[len(click)-1]))
	assert.Less(t, tail, 0.002, "decays to about a thousandth of the gain")

	assert.Nil(t, Click(Sine, 1000, 0, 1, sr))
}

func TestOscillatorRampAndStop(t *testing.T) {
	t.Parallel()

	osc := NewOscillator(Sine, 440, 100)
	osc.RampTo(0.3, 100, 960)

	assert.Zero(t, osc.GainAt(100))
	assert.InDelta(t, 0.15, osc.GainAt(580), 1e-9)
	assert.InDelta(t, 0.3, osc.GainAt(2000), 1e-9)

	block := make([]float32, 100)
	assert.True(t, osc.Render(block, 0, 48000))
	assert.Equal(t, make([]float32, 100), block, "silent before its start frame")

	osc.RampTo(0, 2000, 960)
	osc.StopAt(2960)
	assert.InDelta(t, 0.3, osc.GainAt(2000), 1e-9, "ramp starts from the current gain")

	long := make([]float32, 4000)
	assert.False(t, osc.Render(long, 100, 48000))
	assert.Zero(t, long[len(long)-1])
}
