package pitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type reading struct {
	freq float64
	ok   bool
}

func TestSmootherSequence(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0, 0)
	inputs := []reading{{442, true}, {438, true}, {441, true}, {0, false}, {440, true}}
	want := []reading{{0, false}, {0, false}, {441, true}, {0, false}, {0, false}}

	for i, in := range inputs {
		got, ok := s.Push(in.freq, in.ok)
		assert.Equal(t, want[i].ok, ok, "step %d", i)
		assert.InDelta(t, want[i].freq, got, 1e-9, "step %d", i)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSmootherEvictsOldest(t *testing.T) {
	t.Parallel()

	s := NewSmoother(5, 3)
	for _, f := range []float64{100, 440, 441, 439, 442} {
		s.Push(f, true)
	}
	got, ok := s.Push(443, true)
	assert.True(t, ok)
	assert.Equal(t, 5, s.Len())
	assert.InDelta(t, 441, got, 1e-9, "the 100 Hz outlier was evicted")
}

func TestSmootherEvenCountMedian(t *testing.T) {
	t.Parallel()

	s := NewSmoother(5, 3)
	s.Push(440, true)
	s.Push(444, true)
	s.Push(442, true)
	got, ok := s.Push(446, true)
	assert.True(t, ok)
	assert.InDelta(t, 443, got, 1e-9)
}

func TestSmootherRejectsSingleOutlier(t *testing.T) {
	t.Parallel()

	s := NewSmoother(5, 3)
	for _, f := range []float64{440, 440.5, 880, 439.5} {
		s.Push(f, true)
	}
	got, ok := s.Push(440, true)
	assert.True(t, ok)
	assert.InDelta(t, 440, got, 1e-9)

	s.Reset()
	assert.Zero(t, s.Len())
}
