package audioclock

import (
	"encoding/binary"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
)

// MalgoConfig configures the miniaudio backend.
type MalgoConfig struct {
	SampleRate   int
	PeriodFrames int
	Logger       *slog.Logger
}

// MalgoBackend drives the clock from a miniaudio playback device and opens
// capture devices on the same context.
type MalgoBackend struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	logger     *slog.Logger

	render atomic.Pointer[RenderFunc]
	buf    []float32 // touched only on the playback thread

	mu       sync.Mutex
	captures map[*malgoCapture]struct{}
	closed   bool
}

// platformBackend returns the appropriate malgo backend for the current platform
func platformBackend() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("no audio backend for %s", runtime.GOOS).
			Component("audioclock").
			Category(errors.CategoryAudioDevice).
			Kind(errors.ErrUnsupportedPlatform).
			Context("os", runtime.GOOS).
			Build()
	}
}

// MalgoFactory returns a BackendFactory building MalgoBackends from cfg.
func MalgoFactory(cfg MalgoConfig) BackendFactory {
	return func() (Backend, error) { return NewMalgoBackend(cfg) }
}

// NewMalgoBackend initializes the audio context and the playback device.
// The device is not started.
func NewMalgoBackend(cfg MalgoConfig) (*MalgoBackend, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ForService("audioclock")
	}

	backend, err := platformBackend()
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, classifyDeviceError(err, "init_context")
	}

	b := &MalgoBackend{
		ctx:      ctx,
		logger:   logger,
		captures: make(map[*malgoCapture]struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	if cfg.PeriodFrames > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	}
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: b.onPlayback,
		Stop: func() { logger.Debug("playback device stopped") },
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, classifyDeviceError(err, "init_playback_device")
	}
	b.device = device
	b.sampleRate = int(device.SampleRate())

	return b, nil
}

func (b *MalgoBackend) Name() string    { return "malgo" }
func (b *MalgoBackend) SampleRate() int { return b.sampleRate }

// onPlayback renders mono float32 frames into the device buffer.
func (b *MalgoBackend) onPlayback(out, _ []byte, frameCount uint32) {
	n := int(frameCount)
	if cap(b.buf) < n {
		b.buf = make([]float32, n)
	}
	buf := b.buf[:n]

	if fn := b.render.Load(); fn != nil {
		(*fn)(buf)
	} else {
		clear(buf)
	}

	for i, s := range buf {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
}

func (b *MalgoBackend) Start(render RenderFunc) error {
	b.render.Store(&render)
	if err := b.device.Start(); err != nil {
		return classifyDeviceError(err, "start_playback_device")
	}
	return nil
}

func (b *MalgoBackend) Stop() error {
	if err := b.device.Stop(); err != nil {
		return classifyDeviceError(err, "stop_playback_device")
	}
	return nil
}

// Close uninitializes capture devices, the playback device and the context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	captures := make([]*malgoCapture, 0, len(b.captures))
	for c := range b.captures {
		captures = append(captures, c)
	}
	b.mu.Unlock()

	for _, c := range captures {
		_ = c.Close()
	}

	_ = b.device.Stop()
	b.device.Uninit()
	b.render.Store(nil)

	err := b.ctx.Uninit()
	b.ctx.Free()
	if err != nil {
		return classifyDeviceError(err, "uninit_context")
	}
	return nil
}

// OpenCapture opens a mono float32 capture device. miniaudio delivers raw
// audio, so echo cancellation, gain control and noise suppression are never
// applied.
func (b *MalgoBackend) OpenCapture(cfg CaptureConfig, sink CaptureSink) (Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, closedErr("open_capture")
	}

	if cfg.EchoCancellation || cfg.AutoGainControl || cfg.NoiseSuppression {
		b.logger.Warn("capture processing flags are not supported by miniaudio and will be ignored")
	}

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, classifyDeviceError(err, "enumerate_capture_devices")
	}
	info, err := selectCaptureDevice(infos, cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	c := &malgoCapture{owner: b, sink: sink, name: info.Name()}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: c.onCapture,
	})
	if err != nil {
		return nil, classifyDeviceError(err, "init_capture_device")
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classifyDeviceError(err, "start_capture_device")
	}
	c.device = device
	c.sampleRate = int(device.SampleRate())
	b.captures[c] = struct{}{}

	b.logger.Info("capture device opened",
		"device", c.name,
		"sample_rate", c.sampleRate)
	return c, nil
}

// selectCaptureDevice picks the default device when name is empty, otherwise
// an exact then partial name match.
func selectCaptureDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, errors.Newf("no capture device found").
			Component("audioclock").
			Category(errors.CategoryMicrophone).
			Kind(errors.ErrDeviceNotFound).
			Build()
	}

	if name == "" || name == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		return &devices[0], nil
	}

	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}

	return nil, errors.Newf("capture device %q not found", name).
		Component("audioclock").
		Category(errors.CategoryMicrophone).
		Kind(errors.ErrDeviceNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// classifyDeviceError maps miniaudio results to error kinds.
func classifyDeviceError(err error, operation string) error {
	kind := ClassifyMicrophoneError(err)
	category := errors.CategoryAudioDevice
	if kind == errors.ErrPermissionDenied || kind == errors.ErrDeviceNotFound {
		category = errors.CategoryMicrophone
	}
	return errors.New(err).
		Component("audioclock").
		Category(category).
		Kind(kind).
		Context("operation", operation).
		Build()
}

// ClassifyMicrophoneError returns the sentinel kind for a device error:
// ErrPermissionDenied, ErrDeviceNotFound, ErrUnsupportedPlatform or
// ErrMicrophone.
func ClassifyMicrophoneError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errors.ErrPermissionDenied), errors.Is(err, malgo.ErrAccessDenied):
		return errors.ErrPermissionDenied
	case errors.Is(err, errors.ErrDeviceNotFound), errors.Is(err, malgo.ErrNoDevice),
		errors.Is(err, malgo.ErrDoesNotExist):
		return errors.ErrDeviceNotFound
	case errors.Is(err, errors.ErrUnsupportedPlatform), errors.Is(err, malgo.ErrNoBackend):
		return errors.ErrUnsupportedPlatform
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return errors.ErrPermissionDenied
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "not found"):
		return errors.ErrDeviceNotFound
	case strings.Contains(msg, "no backend"):
		return errors.ErrUnsupportedPlatform
	}
	return errors.ErrMicrophone
}

type malgoCapture struct {
	owner      *MalgoBackend
	device     *malgo.Device
	sink       CaptureSink
	name       string
	sampleRate int
	buf        []float32
	closeOnce  sync.Once
}

func (c *malgoCapture) DeviceName() string { return c.name }
func (c *malgoCapture) SampleRate() int    { return c.sampleRate }

func (c *malgoCapture) onCapture(_, in []byte, frameCount uint32) {
	n := min(int(frameCount), len(in)/4)
	if cap(c.buf) < n {
		c.buf = make([]float32, n)
	}
	buf := c.buf[:n]
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}
	c.sink(buf)
}

func (c *malgoCapture) Close() error {
	c.closeOnce.Do(func() {
		_ = c.device.Stop()
		c.device.Uninit()

		c.owner.mu.Lock()
		delete(c.owner.captures, c)
		c.owner.mu.Unlock()
	})
	return nil
}
