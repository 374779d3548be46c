package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
)

// Client is the service's broker session: sensor subscriptions that survive
// reconnects, a retained presence message with a matching last will, and
// handlers that cannot crash the delivery goroutine.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	loggerMu sync.RWMutex
	logger   Logger

	connected     atomic.Bool
	connects      atomic.Uint64
	lost          atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
	lastConnect   atomic.Int64
}

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives a message's topic (wildcards expanded) and raw
// payload. A returned error is logged at warn level and counted.
//
// Delivery preserves arrival order, so handlers run on paho's router
// goroutine one at a time and must not block for long.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits up to ten seconds for the session.
// On every (re)connect the client restores its subscriptions and publishes
// a retained online status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Info("reconnecting to MQTT broker", "client_id", cfg.Broker.ClientID)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// Stop the background connect retries.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.connects.Add(1)
	c.lastConnect.Store(time.Now().UnixNano())

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		// A failure here surfaces again on the next reconnect.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
	restored := len(c.subscriptions)
	c.subMu.RUnlock()

	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
		statusPayload(StatusOnline, c.cfg.Broker.ClientID, ""))

	if restored > 0 {
		c.log().Info("MQTT subscriptions restored", "count", restored)
	}
}

func (c *Client) handleLost(err error) {
	c.connected.Store(false)
	c.lost.Add(1)
	c.log().Warn("MQTT connection lost", "error", err)
}

// Close publishes a graceful offline status, then disconnects. Calling it
// on a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			statusPayload(StatusOffline, c.cfg.Broker.ClientID, "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetLogger sets the logger for handler failures and connection events.
// Passing nil restores the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler contains handler panics and logs handler errors so a bad
// sensor message never takes down paho's delivery goroutine.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.handlerPanics.Add(1)
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.handlerErrors.Add(1)
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}

// Stats is a snapshot of the session for the metrics endpoint.
type Stats struct {
	Connected       bool      `json:"connected"`
	Subscriptions   int       `json:"subscriptions"`
	Connects        uint64    `json:"connects"`
	ConnectionsLost uint64    `json:"connections_lost"`
	HandlerErrors   uint64    `json:"handler_errors"`
	HandlerPanics   uint64    `json:"handler_panics"`
	LastConnectedAt time.Time `json:"last_connected_at,omitzero"`
}

// Stats returns the session counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Connected:       c.IsConnected(),
		Subscriptions:   c.SubscriptionCount(),
		Connects:        c.connects.Load(),
		ConnectionsLost: c.lost.Load(),
		HandlerErrors:   c.handlerErrors.Load(),
		HandlerPanics:   c.handlerPanics.Load(),
	}
	if ns := c.lastConnect.Load(); ns != 0 {
		s.LastConnectedAt = time.Unix(0, ns).UTC()
	}
	return s
}
