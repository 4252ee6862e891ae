package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/metronome"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
)

// Topic suffixes appended to Config.Topic.
const (
	TopicBeat    = "beat"
	TopicMeasure = "measure"
	TopicState   = "state"
)

// Publisher forwards metronome events from a scheduler subscription to the
// broker. Main beats are published only when Beats is set; measure
// completions and stops always are.
type Publisher struct {
	client  Client
	prefix  string
	beats   bool
	metrics *metrics.MQTTMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher returns a publisher writing under cfg.Topic. m may be nil.
func NewPublisher(client Client, cfg Config, beats bool, m *metrics.MQTTMetrics) *Publisher {
	prefix := cfg.Topic
	if prefix == "" {
		prefix = DefaultConfig().Topic
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		beats:   beats,
		metrics: m,
		logger:  logging.ForService("mqtt").With("topic", prefix),
		now:     time.Now,
	}
}

// Topic returns the topic an event is published on, or "" when the
// publisher skips it.
func (p *Publisher) Topic(ev metronome.Event) string {
	switch ev.Kind {
	case metronome.EventClick:
		if !p.beats || !ev.MainBeat {
			return ""
		}
		return p.prefix + "/" + TopicBeat
	case metronome.EventMeasureComplete:
		return p.prefix + "/" + TopicMeasure
	case metronome.EventStopped:
		return p.prefix + "/" + TopicState
	default:
		return ""
	}
}

// Run publishes events until ctx is done or events is closed. Publish
// failures are logged and counted; they never stop the loop.
func (p *Publisher) Run(ctx context.Context, events <-chan metronome.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev metronome.Event) {
	topic := p.Topic(ev)
	if topic == "" {
		return
	}
	if !p.client.IsConnected() {
		logging.Trace(p.logger, "skipping event, broker not connected", "kind", ev.Kind.String())
		return
	}

	payload, err := json.Marshal(NewEventDTO(ev, p.now()))
	if err != nil {
		p.logger.Error("failed to encode event", "error", err)
		return
	}

	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.logger.Warn("failed to publish event", "error", err, "kind", ev.Kind.String())
		return
	}
	if p.metrics != nil {
		p.metrics.IncrementMessagesDelivered(ev.Kind.String())
	}
}
