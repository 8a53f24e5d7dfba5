package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
)

// Logger is the logging the client needs. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message. Paho calls handlers on its own
// goroutines; a returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is the bridge's broker connection.
//
// It announces the service on the system status topic (retained online,
// offline on Close, and offline through the broker's will on a crash) and
// re-subscribes every tracked topic when paho reconnects.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	topics   Topics
	qos      byte
	clientID string

	connected atomic.Bool

	mu           sync.RWMutex
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and waits for the first
// connection.
//
// Parameters:
//   - cfg: MQTT settings
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed when the broker cannot be reached in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(nil, NewTopics(cfg.TopicPrefix), byte(cfg.QoS), cfg.Broker.ClientID)

	opts := clientOptions(cfg, c.topics)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})
	c.paho = pahomqtt.NewClient(opts)

	if err := await(c.paho.Connect(), ErrConnectionFailed); err != nil {
		return nil, err
	}
	// The connect handler runs asynchronously; report connected now.
	c.connected.Store(true)
	return c, nil
}

func newClient(p pahomqtt.Client, topics Topics, qos byte, clientID string) *Client {
	return &Client{
		paho:     p,
		topics:   topics,
		qos:      qos,
		clientID: clientID,
		subs:     make(map[string]subscription),
	}
}

// handleConnect runs on the first connection and on every reconnect.
func (c *Client) handleConnect() {
	c.connected.Store(true)

	c.mu.RLock()
	restore := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		restore[topic] = sub
	}
	onConnect := c.onConnect
	c.mu.RUnlock()

	for topic, sub := range restore {
		tok := c.paho.Subscribe(topic, sub.qos, c.deliver(sub.handler))
		if err := await(tok, ErrSubscribeFailed); err != nil {
			c.log().Warn("MQTT re-subscribe failed", "topic", topic, "error", err)
		}
	}

	c.paho.Publish(c.topics.SystemStatus(), c.qos, true, statusPayload(statusOnline, c.clientID, ""))

	if onConnect != nil {
		onConnect()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Close announces a graceful shutdown and disconnects.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		tok := c.paho.Publish(c.topics.SystemStatus(), c.qos, true,
			statusPayload(statusOffline, c.clientID, reasonShutdown))
		tok.WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMillis)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho.IsConnected()
}

// Topics returns the topic builders for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// SetOnConnect installs a callback run after every (re)connect, once
// subscriptions are restored.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect installs a callback run when the link drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger installs the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return nopLogger{}
	}
	return c.logger
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// deliver adapts a MessageHandler to paho, recovering panics so one bad
// handler cannot take down paho's router.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
