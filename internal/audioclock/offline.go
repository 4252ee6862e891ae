package audioclock

import "sync"

// offlineBlock is the render quantum used by Advance.
const offlineBlock = 128

// Offline is a deterministic backend. Time advances only when the caller
// renders frames with Advance, and captured audio is injected with Feed.
type Offline struct {
	mu         sync.Mutex
	sampleRate int
	render     RenderFunc
	running    bool
	captures   map[*offlineCapture]struct{}

	// CaptureError, when set, is returned by OpenCapture.
	CaptureError error
}

// NewOffline returns an offline backend at sampleRate.
func NewOffline(sampleRate int) *Offline {
	return &Offline{
		sampleRate: sampleRate,
		captures:   make(map[*offlineCapture]struct{}),
	}
}

// OfflineFactory returns a BackendFactory that always yields o.
func OfflineFactory(o *Offline) BackendFactory {
	return func() (Backend, error) { return o, nil }
}

func (o *Offline) Name() string    { return "offline" }
func (o *Offline) SampleRate() int { return o.sampleRate }

func (o *Offline) Start(render RenderFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.render = render
	o.running = true
	return nil
}

func (o *Offline) Stop() error {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// Close stops rendering and closes open captures. The backend may be
// started again by a new clock.
func (o *Offline) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.render = nil
	for c := range o.captures {
		c.closed = true
	}
	clear(o.captures)
	return nil
}

// Advance renders frames and returns them. While stopped it renders nothing
// and returns nil.
func (o *Offline) Advance(frames int) []float32 {
	o.mu.Lock()
	render, running := o.render, o.running
	o.mu.Unlock()
	if !running || render == nil || frames <= 0 {
		return nil
	}

	out := make([]float32, frames)
	for off := 0; off < frames; off += offlineBlock {
		render(out[off:min(off+offlineBlock, frames)])
	}
	return out
}

// AdvanceSeconds renders the given duration, rounded to whole frames.
func (o *Offline) AdvanceSeconds(seconds float64) []float32 {
	return o.Advance(int(seconds*float64(o.sampleRate) + 0.5))
}

// Feed delivers samples to every open capture.
func (o *Offline) Feed(samples []float32) {
	o.mu.Lock()
	sinks := make([]CaptureSink, 0, len(o.captures))
	for c := range o.captures {
		sinks = append(sinks, c.sink)
	}
	o.mu.Unlock()

	for _, sink := range sinks {
		sink(samples)
	}
}

// Captures returns the number of open captures.
func (o *Offline) Captures() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.captures)
}

func (o *Offline) OpenCapture(cfg CaptureConfig, sink CaptureSink) (Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.CaptureError != nil {
		return nil, o.CaptureError
	}
	c := &offlineCapture{owner: o, sink: sink, cfg: cfg}
	o.captures[c] = struct{}{}
	return c, nil
}

type offlineCapture struct {
	owner  *Offline
	sink   CaptureSink
	cfg    CaptureConfig
	closed bool
}

func (c *offlineCapture) DeviceName() string { return "offline" }
func (c *offlineCapture) SampleRate() int    { return c.cfg.SampleRate }

func (c *offlineCapture) Close() error {
	c.owner.mu.Lock()
	delete(c.owner.captures, c)
	c.closed = true
	c.owner.mu.Unlock()
	return nil
}
