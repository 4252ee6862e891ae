package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "logs/rehearsal.log")
	v.SetDefault("log.file.maxsize", 10)
	v.SetDefault("log.file.maxbackups", 3)
	v.SetDefault("log.file.maxage", 28)

	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.periodframes", 0)
	v.SetDefault("audio.capturedevice", "")

	v.SetDefault("metronome.tempo", 120)
	v.SetDefault("metronome.timesignature", "4/4")
	v.SetDefault("metronome.subdivision", "quarter")
	v.SetDefault("metronome.preset", "classic")
	v.SetDefault("metronome.tickinterval", 25*time.Millisecond)
	v.SetDefault("metronome.scheduleahead", 100*time.Millisecond)

	v.SetDefault("tuner.referencepitch", 440.0)
	v.SetDefault("tuner.windowsize", 8192)
	v.SetDefault("tuner.interval", 16*time.Millisecond)
	v.SetDefault("tuner.smoothingsize", 5)
	v.SetDefault("tuner.minsamples", 3)

	v.SetDefault("server.listen", "127.0.0.1:8089")
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "rehearsal")
	v.SetDefault("mqtt.topic", "rehearsal/metronome")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.beats", false)

	v.SetDefault("metrics.enabled", true)
}
