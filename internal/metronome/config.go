package metronome

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinTempo     = 40
	MaxTempo     = 240
	DefaultTempo = 120
)

// ClampTempo limits bpm to [MinTempo, MaxTempo].
func ClampTempo(bpm int) int {
	return min(max(bpm, MinTempo), MaxTempo)
}

// TimeSignature is a meter. BeatUnit 8 marks compound time, where the beat
// is a dotted quarter.
type TimeSignature struct {
	BeatsPerMeasure int `json:"beats_per_measure" yaml:"beats_per_measure"`
	BeatUnit        int `json:"beat_unit" yaml:"beat_unit"`
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.BeatsPerMeasure, ts.BeatUnit)
}

// TimeSignatures is the supported catalog in display order.
var TimeSignatures = []TimeSignature{
	{2, 4}, {3, 4}, {4, 4}, {5, 4},
	{6, 8}, {7, 8}, {9, 8}, {12, 8},
}

// Supported reports whether ts is in the catalog.
func (ts TimeSignature) Supported() bool {
	for _, known := range TimeSignatures {
		if known == ts {
			return true
		}
	}
	return false
}

// ParseTimeSignature parses "beats/unit" and checks it against the catalog.
func ParseTimeSignature(s string) (TimeSignature, bool) {
	beats, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return TimeSignature{}, false
	}
	b, err := strconv.Atoi(beats)
	if err != nil {
		return TimeSignature{}, false
	}
	u, err := strconv.Atoi(unit)
	if err != nil {
		return TimeSignature{}, false
	}
	ts := TimeSignature{BeatsPerMeasure: b, BeatUnit: u}
	return ts, ts.Supported()
}

// Subdivision is the number of clicks per beat.
type Subdivision int

const (
	Quarter   Subdivision = 1
	Eighth    Subdivision = 2
	Triplet   Subdivision = 3
	Sixteenth Subdivision = 4
)

// Subdivisions is the supported catalog.
var Subdivisions = []Subdivision{Quarter, Eighth, Triplet, Sixteenth}

func (s Subdivision) String() string {
	switch s {
	case Quarter:
		return "quarter"
	case Eighth:
		return "eighth"
	case Triplet:
		return "triplet"
	case Sixteenth:
		return "sixteenth"
	default:
		return "subdivision(" + strconv.Itoa(int(s)) + ")"
	}
}

// ClicksPerBeat returns the number of clicks per beat.
func (s Subdivision) ClicksPerBeat() int { return int(s) }

// Supported reports whether s is in the catalog.
func (s Subdivision) Supported() bool { return s >= Quarter && s <= Sixteenth }

// MarshalText implements encoding.TextMarshaler.
func (s Subdivision) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Subdivision) UnmarshalText(b []byte) error {
	v, ok := ParseSubdivision(string(b))
	if !ok {
		return fmt.Errorf("unknown subdivision %q", b)
	}
	*s = v
	return nil
}

// ParseSubdivision returns the subdivision named s.
func ParseSubdivision(s string) (Subdivision, bool) {
	for _, sub := range Subdivisions {
		if strings.EqualFold(sub.String(), strings.TrimSpace(s)) {
			return sub, true
		}
	}
	return 0, false
}

// Config is the scheduler's musical model.
type Config struct {
	Tempo         int           `json:"tempo"`
	TimeSignature TimeSignature `json:"time_signature"`
	Subdivision   Subdivision   `json:"subdivision"`
	Preset        string        `json:"preset"`
}

// DefaultConfig is 120 BPM 4/4 quarter notes with the classic click.
func DefaultConfig() Config {
	return Config{
		Tempo:         DefaultTempo,
		TimeSignature: TimeSignature{4, 4},
		Subdivision:   Quarter,
		Preset:        PresetClassic,
	}
}

// SecondsPerBeat is 60/tempo, scaled by 1.5 in compound time.
func (c Config) SecondsPerBeat() float64 {
	spb := 60 / float64(c.Tempo)
	if c.TimeSignature.BeatUnit == 8 {
		spb *= 1.5
	}
	return spb
}

// SubdivisionInterval is the time between consecutive clicks.
func (c Config) SubdivisionInterval() float64 {
	return c.SecondsPerBeat() / float64(c.Subdivision.ClicksPerBeat())
}

// ClicksPerMeasure is beats per measure times clicks per beat.
func (c Config) ClicksPerMeasure() int {
	return c.TimeSignature.BeatsPerMeasure * c.Subdivision.ClicksPerBeat()
}
