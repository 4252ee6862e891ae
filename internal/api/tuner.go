package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/songsheets/rehearsal/internal/pitch"
)

// TunerResponse describes the tuner session.
type TunerResponse struct {
	SessionID      string  `json:"session_id"`
	State          string  `json:"state"`
	ReferencePitch float64 `json:"reference_pitch"`
}

// ReferencePitchRequest sets A4.
type ReferencePitchRequest struct {
	ReferencePitch float64 `json:"reference_pitch"`
}

// ReferenceToneRequest plays a reference tone at an explicit frequency or
// at a MIDI note against the current reference pitch.
type ReferenceToneRequest struct {
	Frequency float64 `json:"frequency,omitempty"`
	MIDI      *int    `json:"midi,omitempty"`
}

func (s *Server) requireTuner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.tuner == nil {
			return s.HandleError(c, nil, "Tuner is not enabled", http.StatusServiceUnavailable)
		}
		return next(c)
	}
}

func (s *Server) tunerResponse() TunerResponse {
	return TunerResponse{
		SessionID:      s.tuner.ID(),
		State:          s.tuner.State().String(),
		ReferencePitch: s.tuner.ReferencePitch(),
	}
}

// GetTuner handles GET /api/v1/tuner
func (s *Server) GetTuner(c echo.Context) error {
	return c.JSON(http.StatusOK, s.tunerResponse())
}

// StartTuner handles POST /api/v1/tuner/start. It opens the microphone on
// first use and starts detection, fanning results out to /tuner/events.
func (s *Server) StartTuner(c echo.Context) error {
	if err := s.tuner.Initialize(c.Request().Context()); err != nil && statusFor(err) != http.StatusConflict {
		return s.HandleError(c, err, "Microphone unavailable", statusFor(err))
	}
	if err := s.tuner.Start(s.pitch.publish); err != nil {
		return s.HandleError(c, err, "Tuner could not start", statusFor(err))
	}
	return c.JSON(http.StatusOK, s.tunerResponse())
}

// StopTuner handles POST /api/v1/tuner/stop
func (s *Server) StopTuner(c echo.Context) error {
	s.tuner.Stop()
	return c.JSON(http.StatusOK, s.tunerResponse())
}

// SetReferencePitch handles PUT /api/v1/tuner/reference
func (s *Server) SetReferencePitch(c echo.Context) error {
	var req ReferencePitchRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "Invalid reference pitch request", http.StatusBadRequest)
	}
	if !s.tuner.SetReferencePitch(req.ReferencePitch) {
		return s.HandleError(c, nil, "Reference pitch must be between 430 and 450 Hz", http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, s.tunerResponse())
}

// PlayReferenceTone handles POST /api/v1/tuner/reference-tone
func (s *Server) PlayReferenceTone(c echo.Context) error {
	var req ReferenceToneRequest
	if err := c.Bind(&req); err != nil {
		return s.HandleError(c, err, "Invalid reference tone request", http.StatusBadRequest)
	}

	if req.MIDI == nil && req.Frequency == 0 {
		return s.HandleError(c, nil, "Frequency or MIDI note required", http.StatusBadRequest)
	}
	freq := req.Frequency
	if req.MIDI != nil {
		freq = pitch.MIDIToFrequency(*req.MIDI, s.tuner.ReferencePitch())
	}
	band := pitch.DefaultParams()
	if !(freq >= band.MinFrequency && freq <= band.MaxFrequency) {
		return s.HandleError(c, nil, fmt.Sprintf("Reference tone must be between %g and %g Hz",
			band.MinFrequency, band.MaxFrequency), http.StatusBadRequest)
	}

	played := s.tuner.PlayReference(freq)
	return c.JSON(http.StatusOK, map[string]any{"played": played, "frequency": freq})
}

// StopReferenceTone handles DELETE /api/v1/tuner/reference-tone
func (s *Server) StopReferenceTone(c echo.Context) error {
	s.tuner.StopReference()
	return c.NoContent(http.StatusNoContent)
}
