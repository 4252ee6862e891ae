package audioclock

// RenderFunc fills out with mono float32 frames. Backends call it from
// their audio thread.
type RenderFunc func(out []float32)

// Backend drives the clock. Start may be called again after Stop.
type Backend interface {
	Name() string
	SampleRate() int
	Start(render RenderFunc) error
	Stop() error
	Close() error
	OpenCapture(cfg CaptureConfig, sink CaptureSink) (Capture, error)
}

// CaptureConfig describes a microphone stream. The processing flags are
// requests; backends that capture raw audio ignore false values.
type CaptureConfig struct {
	DeviceName       string
	SampleRate       int
	Channels         int
	EchoCancellation bool
	AutoGainControl  bool
	NoiseSuppression bool
}

// CaptureSink receives mono float32 samples on the capture thread. The
// slice is only valid for the duration of the call.
type CaptureSink func(samples []float32)

// Capture is an open microphone stream.
type Capture interface {
	DeviceName() string
	SampleRate() int
	Close() error
}
