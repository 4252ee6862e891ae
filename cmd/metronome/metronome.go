package metronome

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/engine"
	metro "github.com/songsheets/rehearsal/internal/metronome"
)

// Command creates the metronome command, a console click track.
func Command(settings *conf.Settings) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "metronome",
		Short: "Play a click track on the audio output",
		Long: "Play a click track on the default audio output until interrupted. " +
			"Beat numbers print as they are scheduled.",
		Annotations: map[string]string{
			"tempo":          "metronome.tempo",
			"time-signature": "metronome.timesignature",
			"subdivision":    "metronome.subdivision",
			"preset":         "metronome.preset",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, duration)
		},
	}

	AddFlags(cmd)
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 plays until interrupted)")
	return cmd
}

// AddFlags registers the metronome model flags on cmd. Callers annotate
// cmd with the matching viper keys.
func AddFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("tempo", "t", metro.DefaultTempo, fmt.Sprintf("Tempo in BPM (%d-%d)", metro.MinTempo, metro.MaxTempo))
	cmd.Flags().StringP("time-signature", "m", "4/4", "Time signature, e.g. 3/4 or 6/8")
	cmd.Flags().String("subdivision", "quarter", "Subdivision: quarter, eighth, triplet, sixteenth")
	cmd.Flags().String("preset", metro.PresetClassic, "Click sound preset")
}

func run(ctx context.Context, out io.Writer, settings *conf.Settings, duration time.Duration) error {
	e, err := engine.New(ctx, settings, nil)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	cfg := e.Scheduler.Config()
	_, _ = fmt.Fprintf(out, "%d BPM %s %s (%s), Ctrl-C to stop\n",
		cfg.Tempo, cfg.TimeSignature, cfg.Subdivision, cfg.Preset)

	e.Scheduler.OnMeasureComplete(func(measure int) {
		_, _ = fmt.Fprintf(out, "| %d\n", measure)
	})
	var stopping atomic.Bool
	e.Scheduler.Start(func(beat, beatsPerMeasure int) {
		if !stopping.Load() {
			_, _ = fmt.Fprint(out, beatMark(beat, beatsPerMeasure))
		}
	})

	<-ctx.Done()
	stopping.Store(true)
	e.Scheduler.OnMeasureComplete(nil)
	e.Scheduler.Stop()
	_, _ = fmt.Fprintln(out)
	return nil
}

// beatMark renders the downbeat in brackets.
func beatMark(beat, beatsPerMeasure int) string {
	if beat == 0 {
		return fmt.Sprintf("[1/%d] ", beatsPerMeasure)
	}
	return fmt.Sprintf("%d ", beat+1)
}
