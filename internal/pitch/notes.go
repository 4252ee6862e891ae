package pitch

import (
	"fmt"
	"math"
)

const (
	// DefaultReferencePitch is the standard A4 frequency.
	DefaultReferencePitch = 440.0
	MinReferencePitch     = 430.0
	MaxReferencePitch     = 450.0

	midiA4 = 69
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ValidReferencePitch reports whether a4 is an accepted A4 frequency.
func ValidReferencePitch(a4 float64) bool {
	return a4 >= MinReferencePitch && a4 <= MaxReferencePitch
}

// FrequencyToMIDI returns the nearest MIDI note number to freq for the
// given A4 reference.
func FrequencyToMIDI(freq, a4 float64) int {
	return int(math.Round(midiA4 + 12*math.Log2(freq/a4)))
}

// MIDIToFrequency returns the exact equal-tempered frequency of note.
func MIDIToFrequency(note int, a4 float64) float64 {
	return a4 * math.Pow(2, float64(note-midiA4)/12)
}

// Cents returns the deviation of freq from target in cents.
func Cents(freq, target float64) float64 {
	return 1200 * math.Log2(freq/target)
}

// Note describes the equal-tempered note nearest a detected frequency.
type Note struct {
	Name      string  `json:"name"`
	Octave    int     `json:"octave"`
	MIDI      int     `json:"midi"`
	Frequency float64 `json:"frequency"` // exact frequency of the note
	Cents     float64 `json:"cents"`     // detected minus exact
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d %+.1f¢", n.Name, n.Octave, n.Cents)
}

// NoteFor returns the note nearest freq relative to the A4 reference.
func NoteFor(freq, a4 float64) Note {
	midi := FrequencyToMIDI(freq, a4)
	exact := MIDIToFrequency(midi, a4)
	return Note{
		Name:      noteNames[((midi%12)+12)%12],
		Octave:    floorDiv(midi, 12) - 1,
		MIDI:      midi,
		Frequency: exact,
		Cents:     Cents(freq, exact),
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
