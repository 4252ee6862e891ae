package tuner

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/smallnest/ringbuffer"
)

const (
	DefaultWindowSize = 8192
	bytesPerSample    = 4
)

// Analyser buffers captured audio and exposes the most recent window of
// samples. Captured chunks land in a ring buffer; Window drains it into a
// sliding window. When the ring buffer is full the oldest audio is dropped.
type Analyser struct {
	mu      sync.Mutex
	rb      *ringbuffer.RingBuffer
	window  []float32
	encoded []byte
	scratch []byte
	written uint64
}

// NewAnalyser returns an analyser with a window of windowSize samples.
func NewAnalyser(windowSize int) *Analyser {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Analyser{
		rb:     ringbuffer.New(windowSize * bytesPerSample),
		window: make([]float32, windowSize),
	}
}

// Size returns the window length in samples.
func (a *Analyser) Size() int { return len(a.window) }

// Write appends captured samples. It matches audioclock.CaptureSink.
func (a *Analyser) Write(samples []float32) {
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	// Only the newest window's worth of a large chunk can matter.
	if len(samples) > len(a.window) {
		samples = samples[len(samples)-len(a.window):]
	}

	need := len(samples) * bytesPerSample
	if cap(a.encoded) < need {
		a.encoded = make([]byte, need)
	}
	buf := a.encoded[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(s))
	}

	if free := a.rb.Free(); free < need {
		a.discard(need - free)
	}
	if _, err := a.rb.Write(buf); err != nil {
		// Capacity was made above; a short write only loses the newest tail.
		return
	}
	a.written += uint64(len(samples))
}

// discard drops n bytes of the oldest buffered audio.
func (a *Analyser) discard(n int) {
	if cap(a.scratch) < n {
		a.scratch = make([]byte, n)
	}
	_, _ = a.rb.Read(a.scratch[:n])
}

// Window copies the latest window into dst, growing it if needed, and
// returns it. Before a full window has been captured the oldest part is
// silence.
func (a *Analyser) Window(dst []float32) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := a.rb.Length(); n > 0 {
		if cap(a.scratch) < n {
			a.scratch = make([]byte, n)
		}
		read, _ := a.rb.Read(a.scratch[:n])
		fresh := read / bytesPerSample

		copy(a.window, a.window[fresh:])
		tail := a.window[len(a.window)-fresh:]
		for i := range tail {
			tail[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.scratch[i*bytesPerSample:]))
		}
	}

	if cap(dst) < len(a.window) {
		dst = make([]float32, len(a.window))
	}
	dst = dst[:len(a.window)]
	copy(dst, a.window)
	return dst
}

// Captured returns the total number of samples accepted since the last
// Reset.
func (a *Analyser) Captured() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Reset discards buffered audio and clears the window.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rb.Reset()
	clear(a.window)
	a.written = 0
}
