package serve

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/songsheets/rehearsal/cmd/metronome"
	"github.com/songsheets/rehearsal/internal/api"
	"github.com/songsheets/rehearsal/internal/conf"
	"github.com/songsheets/rehearsal/internal/engine"
	"github.com/songsheets/rehearsal/internal/logging"
	metro "github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/mqtt"
	"github.com/songsheets/rehearsal/internal/observability"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
)

const mqttEventBuffer = 64

// Command creates the serve command, which runs the engine behind the HTTP
// API until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metronome and tuner behind the HTTP API",
		Long: "Run the metronome and tuner behind a JSON API with server-sent " +
			"event streams, Prometheus metrics and optional MQTT publishing.",
		Annotations: map[string]string{
			"tempo":          "metronome.tempo",
			"time-signature": "metronome.timesignature",
			"subdivision":    "metronome.subdivision",
			"preset":         "metronome.preset",
			"listen":         "server.listen",
			"metrics":        "metrics.enabled",
			"mqtt":           "mqtt.enabled",
			"mqtt-broker":    "mqtt.broker",
			"mqtt-beats":     "mqtt.beats",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings)
		},
	}

	metronome.AddFlags(cmd)
	cmd.Flags().StringP("listen", "l", api.DefaultListen, "HTTP listen address")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	cmd.Flags().Bool("mqtt", false, "Publish metronome events to MQTT")
	cmd.Flags().String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().Bool("mqtt-beats", false, "Publish every beat, not only measures")
	return cmd
}

func run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("serve")

	var m *observability.Metrics
	if settings.Metrics.Enabled {
		var err error
		if m, err = observability.NewMetrics(); err != nil {
			return err
		}
		m.Errors.Hook()
	}

	e, err := engine.New(ctx, settings, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Warn("engine close failed", "error", err)
		}
	}()

	if settings.MQTT.Enabled {
		var mm *metrics.MQTTMetrics
		if m != nil {
			mm = m.MQTT
		}
		stop := startPublisher(ctx, settings.MQTT, e.Scheduler, mm, logger)
		defer stop()
	}

	opts := []api.ServerOption{
		api.WithLogger(logging.ForService("api")),
		api.WithListen(settings.Server.Listen),
		api.WithHeartbeat(settings.Server.Heartbeat),
		api.WithTuner(e.Tuner),
	}
	if m != nil {
		opts = append(opts, api.WithMetrics(m))
	}
	return api.New(e.Scheduler, opts...).Run(ctx)
}

// startPublisher connects to the broker in the background, retrying after
// each cooldown, and forwards scheduler events. The returned func stops the
// publisher and disconnects.
func startPublisher(ctx context.Context, s conf.MQTTSettings, sched *metro.Scheduler, m *metrics.MQTTMetrics, logger *slog.Logger) func() {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Topic = s.Topic
	cfg.QoS = s.QoS
	cfg.Retain = s.Retain

	client := mqtt.NewClient(cfg, m)
	publisher := mqtt.NewPublisher(client, cfg, s.Beats, m)
	events, unsubscribe := sched.Subscribe(mqttEventBuffer)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		connect(ctx, client, cfg.ReconnectCooldown, logger)
	}()
	go func() {
		defer wg.Done()
		publisher.Run(ctx, events)
	}()

	return func() {
		cancel()
		unsubscribe()
		wg.Wait()
		client.Disconnect()
	}
}

func connect(ctx context.Context, client mqtt.Client, cooldown time.Duration, logger *slog.Logger) {
	for {
		err := client.Connect(ctx)
		if err == nil {
			return
		}
		logger.Warn("MQTT connection failed, retrying", "error", err, "retry_in", cooldown)

		select {
		case <-ctx.Done():
			return
		case <-time.After(cooldown):
		}
	}
}
