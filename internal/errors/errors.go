// Package errors provides centralized error handling with component and category tagging
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

// CategorizedError is an interface for errors that can specify their own category
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryAudioDevice   ErrorCategory = "audio-device"
	CategoryAudioClock    ErrorCategory = "audio-clock"
	CategoryMicrophone    ErrorCategory = "microphone"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryState         ErrorCategory = "state"
	CategoryResource      ErrorCategory = "resource"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryNetwork       ErrorCategory = "network"
	CategoryMQTTPublish   ErrorCategory = "mqtt-publish"
	CategoryHTTP          ErrorCategory = "http-request"
	CategoryBroadcast     ErrorCategory = "broadcast" // SSE/broadcast operations
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// Sentinel kinds. Builders attach one of these with Kind so callers can
// match with errors.Is regardless of the wrapped cause.
var (
	// ErrUnsupportedPlatform is returned when no audio backend exists.
	ErrUnsupportedPlatform = stderrors.New("unsupported platform: no audio backend available")
	// ErrPermissionDenied is returned when microphone access is refused.
	ErrPermissionDenied = stderrors.New("microphone permission denied")
	// ErrDeviceNotFound is returned when no capture device is present.
	ErrDeviceNotFound = stderrors.New("audio device not found")
	// ErrMicrophone covers every other microphone acquisition failure.
	ErrMicrophone = stderrors.New("microphone unavailable")
	// ErrAlreadyInitialized is returned on a second initialize without destroy.
	ErrAlreadyInitialized = stderrors.New("already initialized")
	// ErrNotInitialized is returned when an operation needs prior initialization.
	ErrNotInitialized = stderrors.New("not initialized")
	// ErrClockClosed is returned when a closed clock handle is used.
	ErrClockClosed = stderrors.New("audio clock closed")
)

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	Kind      error          // Sentinel kind, optional
	Component string         // Component where error occurred
	Category  ErrorCategory  // Error category for better grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	switch {
	case ee.Err == nil && ee.Kind != nil:
		return ee.Kind.Error()
	case ee.Err == nil:
		return string(ee.Category)
	case ee.Kind != nil && !stderrors.Is(ee.Err, ee.Kind):
		return ee.Kind.Error() + ": " + ee.Err.Error()
	default:
		return ee.Err.Error()
	}
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking. An EnhancedError matches another
// EnhancedError of the same category, its sentinel kind, or anything its
// cause matches.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	if ee.Kind != nil && ee.Kind == target {
		return true
	}
	return ee.Err != nil && Is(ee.Err, target)
}

// ErrorCategory implements CategorizedError
func (ee *EnhancedError) ErrorCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}

	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	kind      error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{
		err: err,
		// context is lazily initialized when needed
	}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category for better grouping
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Kind attaches a sentinel so errors.Is(err, kind) holds
func (eb *ErrorBuilder) Kind(kind error) *ErrorBuilder {
	eb.kind = kind
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context["operation"] = operation
	eb.context["duration_ms"] = duration.Milliseconds()
	return eb
}

// Build creates the EnhancedError and runs registered hooks
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Kind:      eb.kind,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = detectCategory(eb.err)
	}

	if hasHooks.Load() {
		runHooks(ee)
	}

	return ee
}

// ErrorHook is invoked for every built error.
type ErrorHook func(ee *EnhancedError)

var (
	hooks    []ErrorHook
	hooksMu  sync.RWMutex
	hasHooks atomic.Bool
)

// AddErrorHook registers a hook that observes every built error
func AddErrorHook(hook ErrorHook) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = append(hooks, hook)
	hasHooks.Store(true)
}

// ClearErrorHooks removes all hooks
func ClearErrorHooks() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = nil
	hasHooks.Store(false)
}

func runHooks(ee *EnhancedError) {
	hooksMu.RLock()
	registered := hooks
	hooksMu.RUnlock()
	for _, hook := range registered {
		hook(ee)
	}
}

// detectCategory derives a category from the cause when none was given
func detectCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryGeneric
	}

	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	errorMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errorMsg, "device"), strings.Contains(errorMsg, "backend"):
		return CategoryAudioDevice
	case strings.Contains(errorMsg, "file"), strings.Contains(errorMsg, "open"):
		return CategoryFileIO
	case strings.Contains(errorMsg, "connection"), strings.Contains(errorMsg, "timeout"):
		return CategoryNetwork
	case strings.Contains(errorMsg, "invalid"), strings.Contains(errorMsg, "out of range"):
		return CategoryValidation
	}

	return CategoryGeneric
}

// Standard library passthrough functions
// These allow this package to be a drop-in replacement for the standard errors package

// NewStd creates a new standard error (passthrough to standard library)
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target (passthrough to standard library)
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target (passthrough to standard library)
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err (passthrough to standard library)
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors (passthrough to standard library)
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory checks if an error is an EnhancedError with the specified category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}
