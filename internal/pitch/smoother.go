package pitch

import "slices"

const (
	DefaultSmoothingSize = 5
	DefaultMinSamples    = 3
)

// Smoother is a median filter over the most recent present readings. An
// absent reading clears it. Not safe for concurrent use.
type Smoother struct {
	size    int
	min     int
	buf     []float64
	scratch []float64
}

// NewSmoother returns a smoother holding up to size readings and producing
// output once min are buffered. Non-positive values select the defaults.
func NewSmoother(size, minSamples int) *Smoother {
	if size <= 0 {
		size = DefaultSmoothingSize
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	minSamples = min(minSamples, size)
	return &Smoother{
		size:    size,
		min:     minSamples,
		buf:     make([]float64, 0, size),
		scratch: make([]float64, 0, size),
	}
}

// Push adds a reading and returns the smoothed frequency.
func (s *Smoother) Push(freq float64, ok bool) (float64, bool) {
	if !ok {
		s.Reset()
		return 0, false
	}

	if len(s.buf) == s.size {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:s.size-1]
	}
	s.buf = append(s.buf, freq)

	if len(s.buf) < s.min {
		return 0, false
	}
	return s.median(), true
}

// Len returns the number of buffered readings.
func (s *Smoother) Len() int { return len(s.buf) }

// Reset clears the buffer.
func (s *Smoother) Reset() { s.buf = s.buf[:0] }

func (s *Smoother) median() float64 {
	s.scratch = append(s.scratch[:0], s.buf...)
	slices.Sort(s.scratch)
	n := len(s.scratch)
	if n%2 == 1 {
		return s.scratch[n/2]
	}
	return (s.scratch[n/2-1] + s.scratch[n/2]) / 2
}
