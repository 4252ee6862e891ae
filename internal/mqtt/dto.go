package mqtt

import (
	"time"

	"github.com/songsheets/rehearsal/internal/metronome"
)

// EventDTO is the JSON payload published for a metronome event.
// Field names are part of the topic contract consumed by stage displays.
type EventDTO struct {
	Kind            string    `json:"kind"`
	AudioTime       float64   `json:"audioTime"` // seconds on the audio clock
	Beat            int       `json:"beat"`
	BeatsPerMeasure int       `json:"beatsPerMeasure"`
	Accent          bool      `json:"accent,omitempty"`
	Measure         int       `json:"measure"`
	Tempo           int       `json:"tempo"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// NewEventDTO converts a scheduler event.
func NewEventDTO(ev metronome.Event, now time.Time) EventDTO {
	return EventDTO{
		Kind:            ev.Kind.String(),
		AudioTime:       ev.Time,
		Beat:            ev.Beat,
		BeatsPerMeasure: ev.BeatsPerMeasure,
		Accent:          ev.Kind == metronome.EventClick && ev.Click == metronome.ClickAccent,
		Measure:         ev.Measure,
		Tempo:           ev.Tempo,
		PublishedAt:     now.UTC(),
	}
}
