// Package render produces click tracks offline by running the metronome
// scheduler against the offline audio clock backend.
package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/songsheets/rehearsal/internal/audioclock"
	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/metronome"
)

const (
	DefaultSampleRate = 44100
	DefaultMeasures   = 4

	// blockDuration is how much audio is rendered between scheduler ticks.
	// It must stay below the scheduler lookahead.
	blockDuration = 25 * time.Millisecond
	lookahead     = 100 * time.Millisecond
	eventBuffer   = 256
)

// Options describes a click track.
type Options struct {
	Config     metronome.Config
	Measures   int
	SampleRate int
	Logger     *slog.Logger
}

// Track is a rendered click track starting on the first downbeat.
type Track struct {
	Samples    []float32
	SampleRate int
	Config     metronome.Config
	Measures   int
	Clicks     int
}

// Duration returns the track length.
func (t *Track) Duration() time.Duration {
	return time.Duration(float64(len(t.Samples)) / float64(t.SampleRate) * float64(time.Second))
}

// ClickTrack renders opts.Measures measures. The result is exactly that many
// measures long, so it loops seamlessly.
func ClickTrack(ctx context.Context, opts Options) (*Track, error) {
	if opts.Measures <= 0 {
		opts.Measures = DefaultMeasures
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("render")
	}

	offline := audioclock.NewOffline(opts.SampleRate)
	provider := audioclock.NewProvider(audioclock.OfflineFactory(offline), audioclock.WithLogger(logger))
	clock, err := provider.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { _ = clock.Release() }()

	if err := clock.Resume(ctx); err != nil {
		return nil, err
	}

	// The loop below drives Tick itself; the scheduler's own driver only
	// runs its initial tick.
	sched := metronome.New(clock,
		metronome.WithConfig(opts.Config),
		metronome.WithTiming(time.Hour, lookahead),
		metronome.WithLogger(logger))
	events, _ := sched.Subscribe(eventBuffer)
	defer sched.Close()

	cfg := sched.Config()
	measureSeconds := float64(cfg.ClicksPerMeasure()) * cfg.SubdivisionInterval()
	block := int(blockDuration.Seconds() * float64(opts.SampleRate))

	sched.Start(nil)

	var (
		all                  []float32
		rendered             int64
		startFrame, endFrame int64 = 0, -1
		clicks, measures     int
		endTime              float64
	)
	halfFrame := 0.5 / float64(opts.SampleRate)
	for endFrame < 0 || rendered < endFrame {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("render").
				Category(errors.CategoryGeneric).
				Context("rendered_seconds", float64(rendered)/float64(opts.SampleRate)).
				Build()
		}

		sched.Tick()
		for drained := false; !drained; {
			select {
			case ev := <-events:
				if endFrame < 0 && ev.Kind == metronome.EventClick {
					endTime = ev.Time + float64(opts.Measures)*measureSeconds
					startFrame = clock.FrameAt(ev.Time)
					endFrame = clock.FrameAt(endTime)
				}
				switch {
				case ev.Kind == metronome.EventClick && ev.Time < endTime-halfFrame:
					clicks++
				case ev.Kind == metronome.EventMeasureComplete && ev.Time <= endTime+halfFrame:
					measures++
				}
			default:
				drained = true
			}
		}

		n := int64(block)
		if endFrame >= 0 {
			n = min(n, endFrame-rendered)
		}
		all = append(all, offline.Advance(int(n))...)
		rendered += n
	}

	logger.Info("click track rendered",
		"measures", measures,
		"clicks", clicks,
		"tempo", cfg.Tempo,
		"time_signature", cfg.TimeSignature.String(),
		"frames", endFrame-startFrame)

	return &Track{
		Samples:    all[startFrame:endFrame],
		SampleRate: opts.SampleRate,
		Config:     cfg,
		Measures:   measures,
		Clicks:     clicks,
	}, nil
}
