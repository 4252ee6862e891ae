// Package conf loads rehearsal settings from YAML, environment and flags.
package conf

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/songsheets/rehearsal/internal/errors"
)

// Settings is the full runtime configuration.
type Settings struct {
	Debug bool // true to enable debug logging

	Log       LogSettings       // console and file logging
	Audio     AudioSettings     // audio backend selection
	Metronome MetronomeSettings // initial scheduler configuration
	Tuner     TunerSettings     // pitch detection loop
	Server    ServerSettings    // HTTP control surface
	MQTT      MQTTSettings      // beat/measure fan-out
	Metrics   MetricsSettings   // prometheus exposition
}

// LogSettings configures internal/logging.
type LogSettings struct {
	Level string // trace, debug, info, warn, error
	JSON  bool   // JSON console output
	File  struct {
		Enabled    bool
		Path       string
		MaxSize    int // megabytes before rotation
		MaxBackups int
		MaxAge     int // days
	}
}

// AudioSettings selects and configures the audio clock backend.
type AudioSettings struct {
	Backend       string // malgo or offline
	SampleRate    int    // output and capture sample rate in Hz
	PeriodFrames  int    // device period size in frames, 0 lets the backend decide
	CaptureDevice string // capture device name substring, empty for default
}

// MetronomeSettings holds the initial scheduler model.
type MetronomeSettings struct {
	Tempo         int           // BPM, clamped to 40..240
	TimeSignature string        // e.g. 4/4, 6/8
	Subdivision   string        // quarter, eighth, triplet, sixteenth
	Preset        string        // click sound preset
	TickInterval  time.Duration // driver period
	ScheduleAhead time.Duration // lookahead window
}

// TunerSettings configures the detection loop.
type TunerSettings struct {
	ReferencePitch float64       // A4 in Hz
	WindowSize     int           // analysis window in samples
	Interval       time.Duration // detection period
	SmoothingSize  int           // median filter capacity
	MinSamples     int           // readings needed before output
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Listen    string
	Heartbeat time.Duration // SSE keep-alive period
}

// MQTTSettings configures the event publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retain   bool
	Beats    bool // publish every main beat, not only measures
}

// MetricsSettings toggles the /metrics endpoint.
type MetricsSettings struct {
	Enabled bool
}

// EnvPrefix is prepended to environment overrides, e.g. REHEARSAL_METRONOME_TEMPO.
const EnvPrefix = "REHEARSAL"

// Load reads configuration into v and returns validated settings. An explicit
// configFile takes precedence over the default search paths. A missing
// config file is not an error; defaults apply.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}

	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	return settings, nil
}

// initViper sets defaults, environment binding and reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}

	return nil
}

// DefaultConfigPaths lists the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rehearsal"))
	}
	return append(paths, "/etc/rehearsal")
}
