// Package engine assembles the audio clock, metronome scheduler and tuner
// session from settings. Every command runs on one Engine.
package engine

import (
	"context"
	"log/slog"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/observability"
	"github.com/songsheets/rehearsal/internal/tuner"
)

// Engine owns one clock handle and the components that share it.
type Engine struct {
	Clock     *audioclock.Handle
	Scheduler *metronome.Scheduler
	Tuner     *tuner.Session

	provider *audioclock.Provider
	offline  *audioclock.Offline
	logger   *slog.Logger
}

// MetronomeConfig converts settings into a scheduler model. Tempo is
// clamped; an unknown meter, subdivision or preset is a validation error.
func MetronomeConfig(ms conf.MetronomeSettings) (metronome.Config, error) {
	cfg := metronome.DefaultConfig()
	cfg.Tempo = metronome.ClampTempo(ms.Tempo)

	if ms.TimeSignature != "" {
		ts, ok := metronome.ParseTimeSignature(ms.TimeSignature)
		if !ok {
			return cfg, invalid("time_signature", ms.TimeSignature)
		}
		cfg.TimeSignature = ts
	}
	if ms.Subdivision != "" {
		sub, ok := metronome.ParseSubdivision(ms.Subdivision)
		if !ok {
			return cfg, invalid("subdivision", ms.Subdivision)
		}
		cfg.Subdivision = sub
	}
	if ms.Preset != "" {
		if _, ok := metronome.LookupPreset(ms.Preset); !ok {
			return cfg, invalid("preset", ms.Preset)
		}
		cfg.Preset = ms.Preset
	}
	return cfg, nil
}

func invalid(field, value string) error {
	return errors.Newf("unsupported metronome %s %q", field, value).
		Component("engine").
		Category(errors.CategoryValidation).
		Context("field", field).
		Build()
}

// New opens the configured backend, resumes the clock and builds the
// scheduler and tuner on it. m may be nil.
func New(ctx context.Context, settings *conf.Settings, m *observability.Metrics) (*Engine, error) {
	cfg, err := MetronomeConfig(settings.Metronome)
	if err != nil {
		return nil, err
	}

	e := &Engine{logger: logging.ForService("engine")}

	clockOpts := []audioclock.Option{audioclock.WithLogger(logging.ForService("audioclock"))}
	if m != nil {
		clockOpts = append(clockOpts, audioclock.WithStateObserver(m.AudioClock.ObserveState))
	}
	e.provider = audioclock.NewProvider(e.factory(settings.Audio), clockOpts...)

	e.Clock, err = e.provider.Acquire()
	if err != nil {
		return nil, err
	}
	if err := e.Clock.Resume(ctx); err != nil {
		_ = e.Clock.Release()
		return nil, err
	}

	schedOpts := []metronome.Option{
		metronome.WithConfig(cfg),
		metronome.WithTiming(settings.Metronome.TickInterval, settings.Metronome.ScheduleAhead),
		metronome.WithLogger(logging.ForService("metronome")),
	}
	if m != nil {
		schedOpts = append(schedOpts, metronome.WithRecorder(m.Metronome))
	}
	e.Scheduler = metronome.New(e.Clock, schedOpts...)

	tunerOpts := tuner.Options{
		DeviceName:     settings.Audio.CaptureDevice,
		WindowSize:     settings.Tuner.WindowSize,
		Interval:       settings.Tuner.Interval,
		SmoothingSize:  settings.Tuner.SmoothingSize,
		MinSamples:     settings.Tuner.MinSamples,
		ReferencePitch: settings.Tuner.ReferencePitch,
		Logger:         logging.ForService("tuner"),
	}
	if m != nil {
		tunerOpts.Recorder = m.Tuner
	}
	e.Tuner = tuner.NewSession(e.Clock, tunerOpts)

	e.logger.Info("engine ready",
		"backend", e.Clock.BackendName(),
		"sample_rate", e.Clock.SampleRate(),
		"tempo", cfg.Tempo,
		"time_signature", cfg.TimeSignature.String())
	return e, nil
}

func (e *Engine) factory(audio conf.AudioSettings) audioclock.BackendFactory {
	if audio.Backend == "offline" {
		e.offline = audioclock.NewOffline(audio.SampleRate)
		return audioclock.OfflineFactory(e.offline)
	}
	return audioclock.MalgoFactory(audioclock.MalgoConfig{
		SampleRate:   audio.SampleRate,
		PeriodFrames: audio.PeriodFrames,
		Logger:       logging.ForService("malgo"),
	})
}

// Offline returns the offline backend, or nil on a device backend.
func (e *Engine) Offline() *audioclock.Offline { return e.offline }

// Close stops the tuner and scheduler and releases the clock.
func (e *Engine) Close() error {
	e.Tuner.Destroy()
	e.Scheduler.Close()
	if err := e.Clock.Release(); err != nil {
		return err
	}
	e.logger.Info("engine closed")
	return nil
}
