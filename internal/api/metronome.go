package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/songsheets/rehearsal/internal/metronome"
)

// MetronomeResponse is the metronome configuration and position.
type MetronomeResponse struct {
	Tempo         int             `json:"tempo"`
	TimeSignature string          `json:"time_signature"`
	Subdivision   string          `json:"subdivision"`
	Preset        string          `json:"preset"`
	Position      metronome.State `json:"position"`
	Ignored       []string        `json:"ignored,omitempty"`
}

// MetronomeUpdate changes any subset of the configuration. Tempo is
// clamped; unsupported values of the other fields are ignored and listed
// in the response.
type MetronomeUpdate struct {
	Tempo         *int    `json:"tempo,omitempty"`
	TimeSignature *string `json:"time_signature,omitempty"`
	Subdivision   *string `json:"subdivision,omitempty"`
	Preset        *string `json:"preset,omitempty"`
}

func (s *Server) metronomeResponse() MetronomeResponse {
	cfg := s.scheduler.Config()
	return MetronomeResponse{
		Tempo:         cfg.Tempo,
		TimeSignature: cfg.TimeSignature.String(),
		Subdivision:   cfg.Subdivision.String(),
		Preset:        cfg.Preset,
		Position:      s.scheduler.State(),
	}
}

// GetMetronome handles GET /api/v1/metronome
func (s *Server) GetMetronome(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metronomeResponse())
}

// UpdateMetronome handles PUT /api/v1/metronome
func (s *Server) UpdateMetronome(c echo.Context) error {
	var req MetronomeUpdate
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "Invalid metronome update", http.StatusBadRequest)
	}

	var ignored []string
	if req.Tempo != nil {
		s.scheduler.SetTempo(*req.Tempo)
	}
	if req.TimeSignature != nil {
		ts, ok := metronome.ParseTimeSignature(*req.TimeSignature)
		if !ok || !s.scheduler.SetTimeSignature(ts) {
			ignored = append(ignored, "time_signature")
		}
	}
	if req.Subdivision != nil {
		sub, ok := metronome.ParseSubdivision(*req.Subdivision)
		if !ok || !s.scheduler.SetSubdivision(sub) {
			ignored = append(ignored, "subdivision")
		}
	}
	if req.Preset != nil && !s.scheduler.SetSoundPreset(*req.Preset) {
		ignored = append(ignored, "preset")
	}

	resp := s.metronomeResponse()
	resp.Ignored = ignored
	if len(ignored) > 0 {
		s.logger.Debug("metronome update ignored fields", "fields", ignored)
	}
	return c.JSON(http.StatusOK, resp)
}

// StartMetronome handles POST /api/v1/metronome/start
func (s *Server) StartMetronome(c echo.Context) error {
	s.scheduler.Start(nil)
	return c.JSON(http.StatusOK, s.metronomeResponse())
}

// StopMetronome handles POST /api/v1/metronome/stop
func (s *Server) StopMetronome(c echo.Context) error {
	s.scheduler.Stop()
	return c.JSON(http.StatusOK, s.metronomeResponse())
}

// PlayTestSound handles POST /api/v1/metronome/test-sound
func (s *Server) PlayTestSound(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"played": s.scheduler.PlayTestSound()})
}

// ListPresets handles GET /api/v1/metronome/presets
func (s *Server) ListPresets(c echo.Context) error {
	return c.JSON(http.StatusOK, metronome.Presets())
}
