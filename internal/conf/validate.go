package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. Of the metronome
// settings only the scheduler timing is checked here; tempo, time signature,
// subdivision and preset are left to the engine and scheduler.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateLogSettings(&settings.Log)...)
	ve.Errors = append(ve.Errors, validateAudioSettings(&settings.Audio)...)
	ve.Errors = append(ve.Errors, validateMetronomeSettings(&settings.Metronome)...)
	ve.Errors = append(ve.Errors, validateTunerSettings(&settings.Tuner)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLogSettings(settings *LogSettings) []string {
	var errs []string
	switch strings.ToLower(settings.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of trace, debug, info, warn, error", settings.Level))
	}
	if settings.File.Enabled && settings.File.Path == "" {
		errs = append(errs, "log.file.path is required when file logging is enabled")
	}
	return errs
}

func validateAudioSettings(settings *AudioSettings) []string {
	var errs []string
	switch settings.Backend {
	case "malgo", "offline":
	default:
		errs = append(errs, fmt.Sprintf("audio.backend %q must be malgo or offline", settings.Backend))
	}
	if settings.SampleRate < 8000 || settings.SampleRate > 192000 {
		errs = append(errs, fmt.Sprintf("audio.samplerate %d out of range 8000..192000", settings.SampleRate))
	}
	if settings.PeriodFrames < 0 {
		errs = append(errs, "audio.periodframes must not be negative")
	}
	return errs
}

func validateMetronomeSettings(settings *MetronomeSettings) []string {
	var errs []string
	if settings.TickInterval <= 0 {
		errs = append(errs, "metronome.tickinterval must be positive")
	}
	if settings.ScheduleAhead <= settings.TickInterval {
		errs = append(errs, "metronome.scheduleahead must exceed metronome.tickinterval")
	}
	return errs
}

func validateTunerSettings(settings *TunerSettings) []string {
	var errs []string
	if settings.WindowSize < 256 {
		errs = append(errs, fmt.Sprintf("tuner.windowsize %d must be at least 256", settings.WindowSize))
	}
	if settings.Interval <= 0 {
		errs = append(errs, "tuner.interval must be positive")
	}
	if settings.SmoothingSize < 1 {
		errs = append(errs, "tuner.smoothingsize must be at least 1")
	}
	if settings.MinSamples < 1 || settings.MinSamples > settings.SmoothingSize {
		errs = append(errs, "tuner.minsamples must be between 1 and tuner.smoothingsize")
	}
	return errs
}

func validateMQTTSettings(settings *MQTTSettings) []string {
	if !settings.Enabled {
		return nil
	}
	var errs []string
	if settings.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	} else if u, err := url.Parse(settings.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("mqtt.broker %q is not a valid broker URL", settings.Broker))
	}
	if settings.Topic == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	if settings.QoS > 2 {
		errs = append(errs, fmt.Sprintf("mqtt.qos %d must be 0, 1 or 2", settings.QoS))
	}
	return errs
}
