package presets

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	metro "github.com/songsheets/rehearsal/internal/metronome"
)

// Catalog is everything a song sheet may ask the metronome for.
type Catalog struct {
	Tempo          TempoRange          `yaml:"tempo"`
	TimeSignatures []string            `yaml:"time_signatures"`
	Subdivisions   []string            `yaml:"subdivisions"`
	Presets        []metro.SoundPreset `yaml:"presets"`
}

// TempoRange is the accepted BPM range.
type TempoRange struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

// Command creates the presets command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Print the metronome catalog as YAML",
		Long:  "Print supported tempos, time signatures, subdivisions and click sound presets as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Write(cmd.OutOrStdout())
		},
	}
}

// NewCatalog collects the metronome catalog.
func NewCatalog() Catalog {
	c := Catalog{
		Tempo:   TempoRange{Min: metro.MinTempo, Max: metro.MaxTempo, Default: metro.DefaultTempo},
		Presets: metro.Presets(),
	}
	for _, ts := range metro.TimeSignatures {
		c.TimeSignatures = append(c.TimeSignatures, ts.String())
	}
	for _, sub := range metro.Subdivisions {
		c.Subdivisions = append(c.Subdivisions, sub.String())
	}
	return c
}

// Write encodes the catalog to w.
func Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewCatalog()); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return enc.Close()
}
