package metronome

import "github.com/songsheets/rehearsal/internal/synth"

const (
	PresetClassic   = "classic"
	PresetWoodBlock = "woodBlock"
	PresetHiHat     = "hiHat"
	PresetRimshot   = "rimshot"
	PresetSoftClick = "softClick"
)

// SoundPreset describes the accented and regular click sounds. Durations
// are in seconds.
type SoundPreset struct {
	Name            string         `json:"name" yaml:"name"`
	AccentFreq      float64        `json:"accent_freq_hz" yaml:"accent_freq_hz"`
	RegularFreq     float64        `json:"regular_freq_hz" yaml:"regular_freq_hz"`
	AccentDuration  float64        `json:"accent_duration_s" yaml:"accent_duration_s"`
	RegularDuration float64        `json:"regular_duration_s" yaml:"regular_duration_s"`
	AccentGain      float64        `json:"accent_gain" yaml:"accent_gain"`
	RegularGain     float64        `json:"regular_gain" yaml:"regular_gain"`
	Waveform        synth.Waveform `json:"waveform" yaml:"waveform"`
}

var presets = []SoundPreset{
	{PresetClassic, 1500, 1000, 0.05, 0.03, 0.8, 0.5, synth.Sine},
	{PresetWoodBlock, 1200, 900, 0.04, 0.03, 0.9, 0.6, synth.Triangle},
	{PresetHiHat, 8000, 6000, 0.03, 0.02, 0.5, 0.3, synth.Square},
	{PresetRimshot, 2500, 1800, 0.02, 0.015, 1.0, 0.7, synth.Square},
	{PresetSoftClick, 880, 660, 0.06, 0.05, 0.4, 0.25, synth.Sine},
}

// Presets returns a copy of the preset catalog.
func Presets() []SoundPreset {
	out := make([]SoundPreset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset returns the preset named name.
func LookupPreset(name string) (SoundPreset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return SoundPreset{}, false
}
