package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/songsheets/rehearsal/internal/errors"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes an ErrorResponse.
func (s *Server) HandleError(c echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	s.logger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", resp.Error,
		"code", code,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"ip", c.RealIP())
	return c.JSON(code, resp)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnsupportedPlatform):
		return http.StatusNotImplemented
	case errors.Is(err, errors.ErrAlreadyInitialized), errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryMicrophone):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
