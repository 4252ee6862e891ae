package metronome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTempo(t *testing.T) {
	t.Parallel()

	for bpm := MinTempo; bpm <= MaxTempo; bpm++ {
		require.Equal(t, bpm, ClampTempo(bpm))
	}
	assert.Equal(t, MinTempo, ClampTempo(39))
	assert.Equal(t, MinTempo, ClampTempo(-10))
	assert.Equal(t, MaxTempo, ClampTempo(241))
	assert.Equal(t, MaxTempo, ClampTempo(1000))
}

func TestParseTimeSignature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   TimeSignature
		wantOK bool
	}{
		{"4/4", TimeSignature{4, 4}, true},
		{" 6/8 ", TimeSignature{6, 8}, true},
		{"12/8", TimeSignature{12, 8}, true},
		{"11/8", TimeSignature{11, 8}, false},
		{"3/2", TimeSignature{3, 2}, false},
		{"waltz", TimeSignature{}, false},
		{"3/x", TimeSignature{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseTimeSignature(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestParseSubdivision(t *testing.T) {
	t.Parallel()

	for _, sub := range Subdivisions {
		got, ok := ParseSubdivision(sub.String())
		require.True(t, ok)
		assert.Equal(t, sub, got)
	}
	_, ok := ParseSubdivision("quintuplet")
	assert.False(t, ok)
	assert.False(t, Subdivision(5).Supported())

	var s Subdivision
	require.NoError(t, s.UnmarshalText([]byte("Triplet")))
	assert.Equal(t, Triplet, s)
}

func TestIntervals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		beat       float64
		interval   float64
		perMeasure int
	}{
		{"120 4/4 quarter", Config{Tempo: 120, TimeSignature: TimeSignature{4, 4}, Subdivision: Quarter}, 0.5, 0.5, 4},
		{"120 6/8 quarter", Config{Tempo: 120, TimeSignature: TimeSignature{6, 8}, Subdivision: Quarter}, 0.75, 0.75, 6},
		{"60 4/4 eighth", Config{Tempo: 60, TimeSignature: TimeSignature{4, 4}, Subdivision: Eighth}, 1, 0.5, 8},
		{"90 3/4 triplet", Config{Tempo: 90, TimeSignature: TimeSignature{3, 4}, Subdivision: Triplet}, 2.0 / 3, 2.0 / 9, 9},
		{"240 12/8 sixteenth", Config{Tempo: 240, TimeSignature: TimeSignature{12, 8}, Subdivision: Sixteenth}, 0.375, 0.09375, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.beat, tt.cfg.SecondsPerBeat(), 1e-12)
			assert.InDelta(t, tt.interval, tt.cfg.SubdivisionInterval(), 1e-12)
			assert.Equal(t, tt.perMeasure, tt.cfg.ClicksPerMeasure())
		})
	}
}

func TestPresetCatalog(t *testing.T) {
	t.Parallel()

	names := make([]string, 0, 5)
	for _, p := range Presets() {
		names = append(names, p.Name)
		assert.Greater(t, p.AccentGain, p.RegularGain, p.Name)
		assert.Positive(t, p.RegularDuration, p.Name)
	}
	assert.Equal(t, []string{"classic", "woodBlock", "hiHat", "rimshot", "softClick"}, names)

	_, ok := LookupPreset("cowbell")
	assert.False(t, ok)
}
