package render

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/songsheets/rehearsal/cmd/metronome"
	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/engine"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/render"
)

// Command creates the render command, which writes a click track to a WAV
// file without touching the audio device.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		output   string
		measures int
		bitDepth int
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a loopable click track to a WAV file",
		Long: "Render whole measures of click track, starting on the downbeat, " +
			"through the metronome scheduler on an offline clock.",
		Example: "  rehearsal render -o click-72-6-8.wav --tempo 72 --time-signature 6/8 --measures 8",
		Annotations: map[string]string{
			"tempo":          "metronome.tempo",
			"time-signature": "metronome.timesignature",
			"subdivision":    "metronome.subdivision",
			"preset":         "metronome.preset",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, output, measures, bitDepth)
		},
	}

	metronome.AddFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output WAV file path")
	cmd.Flags().IntVarP(&measures, "measures", "n", render.DefaultMeasures, "Number of measures to render")
	cmd.Flags().IntVar(&bitDepth, "bit-depth", render.BitDepth16, "WAV bit depth: 16 or 24")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func run(ctx context.Context, out io.Writer, settings *conf.Settings, output string, measures, bitDepth int) error {
	cfg, err := engine.MetronomeConfig(settings.Metronome)
	if err != nil {
		return err
	}
	if measures < 1 {
		return fmt.Errorf("measures must be at least 1, got %d", measures)
	}

	track, err := render.ClickTrack(ctx, render.Options{
		Config:     cfg,
		Measures:   measures,
		SampleRate: settings.Audio.SampleRate,
		Logger:     logging.ForService("render"),
	})
	if err != nil {
		return err
	}
	if err := render.SaveWAV(output, track, bitDepth); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "wrote %s: %d measures of %s at %d BPM, %d clicks, %s\n",
		output, track.Measures, cfg.TimeSignature, cfg.Tempo, track.Clicks, track.Duration())
	return nil
}
