package presets

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	metro "github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/synth"
)

func TestCommandPrintsCatalog(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := Command()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "time_signatures:")
	assert.Contains(t, text, "- 6/8")
	assert.Contains(t, text, "waveform: triangle")

	var got Catalog
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, TempoRange{Min: 40, Max: 240, Default: 120}, got.Tempo)
	assert.Len(t, got.TimeSignatures, len(metro.TimeSignatures))
	assert.Equal(t, []string{"quarter", "eighth", "triplet", "sixteenth"}, got.Subdivisions)

	require.Len(t, got.Presets, len(metro.Presets()))
	woodBlock, ok := metro.LookupPreset(metro.PresetWoodBlock)
	require.True(t, ok)
	assert.Equal(t, woodBlock, got.Presets[1])
	assert.Equal(t, synth.Triangle, got.Presets[1].Waveform)
}
