package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/logix-uplink/internal/infrastructure/config"
)

// Logger is the logging surface the client needs.
// *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client is the uplink's connection to the broker. It owns the status,
// pass and command topics of one target.
//
// All methods are safe for concurrent use. paho reconnects on its own;
// on every (re)connect the client republishes its online status and
// re-subscribes the command topic.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	id     Identity
	topics Topics

	connected atomic.Bool

	mu       sync.RWMutex
	onCmd    CommandHandler
	logger   Logger
	clientID string
}

// Connect dials the broker and waits up to 10s for the first connection.
func Connect(cfg config.MQTTConfig, id Identity) (*Client, error) {
	if id.Target == "" {
		return nil, ErrNoTarget
	}

	c := &Client{
		cfg:      cfg,
		id:       id,
		topics:   Topics{Target: id.Target},
		logger:   noopLogger{},
		clientID: cfg.Broker.ClientID,
	}

	opts := clientOptions(cfg, id).
		SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) }).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.log().Info("MQTT reconnecting", "broker", cfg.Broker.Host)
		})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected now so
	// OnCommand can subscribe straight after Connect returns.
	c.connected.Store(true)
	return c, nil
}

// Topics returns the topics owned by this client's target.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) handleConnect() {
	c.connected.Store(true)

	if err := c.publish(c.topics.Status(), c.statusPayload(StateOnline, ""), true); err != nil {
		c.log().Warn("publishing online status", "error", err)
	}

	c.mu.RLock()
	handler := c.onCmd
	c.mu.RUnlock()
	if handler != nil {
		c.client.Subscribe(c.topics.Command(), byte(c.cfg.QoS), c.dispatch)
	}

	c.log().Info("MQTT connected", "status_topic", c.topics.Status())
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)
	c.log().Warn("MQTT connection lost", "error", err)
}

func (c *Client) statusPayload(state, reason string) []byte {
	return statusPayload(c.id.status(c.clientID, state, reason, time.Now()))
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		if err := c.publish(c.topics.Status(), c.statusPayload(StateOffline, ReasonShutdown), true); err != nil {
			c.log().Warn("publishing offline status", "error", err)
		}
	}

	c.client.Disconnect(disconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetLogger sets the logger used for connection events and command errors.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}
