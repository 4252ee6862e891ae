package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from + i)
	}
	return out
}

func TestAnalyserWindowSlides(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(8)
	a.Write(ramp(1, 3))

	w := a.Window(nil)
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 1, 2, 3}, w, "unfilled window is padded with silence")

	a.Write(ramp(4, 6))
	w = a.Window(w)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7, 8, 9}, w)

	w = a.Window(w)
	assert.Equal(t, []float32{2, 3, 4, 5, 6, 7, 8, 9}, w, "no new audio keeps the window")
	assert.EqualValues(t, 9, a.Captured())
}

func TestAnalyserDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(4)
	a.Write(ramp(1, 3))
	a.Write(ramp(4, 3)) // overflows the ring buffer by two samples

	assert.Equal(t, []float32{3, 4, 5, 6}, a.Window(nil))

	a.Write(ramp(100, 10))
	assert.Equal(t, []float32{106, 107, 108, 109}, a.Window(nil), "oversized chunk keeps its tail")
}

func TestAnalyserReset(t *testing.T) {
	t.Parallel()

	a := NewAnalyser(0)
	require.Equal(t, DefaultWindowSize, a.Size())

	a.Write(ramp(1, 100))
	a.Reset()
	w := a.Window(nil)
	assert.Len(t, w, DefaultWindowSize)
	for _, v := range w {
		require.Zero(t, v)
	}
	assert.Zero(t, a.Captured())
}
