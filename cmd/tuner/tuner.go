package tuner

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/engine"
	"github.com/songsheets/rehearsal/internal/pitch"
	tune "github.com/songsheets/rehearsal/internal/tuner"
)

const (
	printInterval = 100 * time.Millisecond
	meterWidth    = 21 // cells in the cents meter, odd so zero is centred
)

// Command creates the tuner command, a console tuner on the microphone.
func Command(settings *conf.Settings) *cobra.Command {
	var toneMIDI int

	cmd := &cobra.Command{
		Use:   "tuner",
		Short: "Show the detected note and its tuning from the microphone",
		Annotations: map[string]string{
			"reference": "tuner.referencepitch",
			"device":    "audio.capturedevice",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, toneMIDI)
		},
	}

	cmd.Flags().Float64P("reference", "r", pitch.DefaultReferencePitch, "Reference pitch for A4 in Hz (430-450)")
	cmd.Flags().String("device", "", "Capture device name substring (default device if empty)")
	cmd.Flags().IntVar(&toneMIDI, "tone", -1, "Also play a reference tone at this MIDI note, e.g. 69 for A4")
	return cmd
}

func run(ctx context.Context, out io.Writer, settings *conf.Settings, toneMIDI int) error {
	e, err := engine.New(ctx, settings, nil)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	session := e.Tuner
	if err := session.Initialize(ctx); err != nil {
		return fmt.Errorf("microphone unavailable: %w", err)
	}

	if toneMIDI >= 0 {
		session.PlayReferenceNote(toneMIDI)
		defer session.StopReference()
	}

	_, _ = fmt.Fprintf(out, "A4 = %.1f Hz, Ctrl-C to stop\n", session.ReferencePitch())

	samples := make(chan tune.Sample, 16)
	if err := session.Start(func(s tune.Sample) {
		select {
		case samples <- s:
		default:
		}
	}); err != nil {
		return err
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			session.Stop()
			_, _ = fmt.Fprintln(out)
			return nil
		case s := <-samples:
			if time.Since(last) < printInterval {
				continue
			}
			last = time.Now()
			_, _ = fmt.Fprintf(out, "\r%s", Line(s))
		}
	}
}

// Line renders a sample as one fixed-width console line.
func Line(s tune.Sample) string {
	if !s.Valid || s.Note == nil {
		return fmt.Sprintf("%-6s %9s  %s", "--", "", meter(0, false))
	}
	n := s.Note
	return fmt.Sprintf("%-6s %7.1fHz  %s %+5.1f¢",
		fmt.Sprintf("%s%d", n.Name, n.Octave), s.Frequency, meter(n.Cents, true), n.Cents)
}

// meter draws cents in [-50, 50] as a needle on a bar.
func meter(cents float64, show bool) string {
	cells := []rune(strings.Repeat("-", meterWidth))
	mid := meterWidth / 2
	cells[mid] = '|'
	if show {
		pos := mid + int(math.Round(cents/50*float64(mid)))
		pos = min(max(pos, 0), meterWidth-1)
		cells[pos] = '*'
	}
	return "[" + string(cells) + "]"
}
