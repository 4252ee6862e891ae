package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/songsheets/rehearsal/internal/errors"
	"github.com/songsheets/rehearsal/internal/logging"
	"github.com/songsheets/rehearsal/internal/observability/metrics"
)

// client implements the Client interface on paho.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	logger          *slog.Logger
}

// NewClient creates a new MQTT client. m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics) Client {
	defaults := DefaultConfig()
	if cfg.ReconnectCooldown <= 0 {
		cfg.ReconnectCooldown = defaults.ReconnectCooldown
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = defaults.ClientID
	}
	return &client{
		config:  cfg,
		metrics: m,
		logger:  logging.ForService("mqtt").With("broker", cfg.Broker),
	}
}

func mqttError(err error, operation string) *errors.EnhancedError {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryNetwork).
		Context("operation", operation).
		Build()
}

// Connect resolves the broker host and connects. Attempts closer together
// than the reconnect cooldown are refused.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return mqttError(fmt.Errorf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)), "connect")
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return mqttError(err, "parse_broker")
	}
	host := u.Hostname()
	if host == "" {
		return mqttError(fmt.Errorf("broker URL %q has no host", c.config.Broker), "parse_broker")
	}

	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(err, "resolve")
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return mqttError(errors.NewStd("connection timeout"), "connect")
	}
	if err := token.Error(); err != nil {
		return mqttError(err, "connect")
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// Publish sends payload to topic with the configured QoS and retain flag.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connectedLocked() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		timer := c.metrics.StartPublishTimer()
		defer timer.ObserveDuration()
	}

	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		c.logger.Warn("publish timeout", "topic", topic)
		return errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if c.metrics != nil {
		c.metrics.ObserveMessageSize(float64(len(payload)))
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *client) connectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectedLocked() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

func (c *client) onConnect(paho.Client) {
	c.logger.Info("connected to MQTT broker")
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("connection to MQTT broker lost", "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.IncrementErrors()
	}
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.logger.Debug("reconnecting to MQTT broker")
	if c.metrics != nil {
		c.metrics.IncrementReconnectAttempts()
	}
}
