package hostmqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/audit"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/mqtt"
)

// setTimeout bounds a set command; pacing runs on after it returns.
const setTimeout = 10 * time.Second

// MQTTClient is the part of the MQTT client used by the bridge.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Registry looks up accessories. *appliance.Manager satisfies it.
type Registry interface {
	Get(name string) (appliance.Accessory, error)
	List() []appliance.Accessory
}

// AuditLog records set commands. *audit.Log satisfies it.
type AuditLog interface {
	Record(ctx context.Context, accessory, characteristic string, value any, source, subject string, result error) (*audit.Entry, error)
}

// Logger is the logging surface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// StateMessage is the retained accessory snapshot.
// Topic: {prefix}/state/accessory/{name}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Accessory string         `json:"accessory"`
	Type      string         `json:"type"`
	State     map[string]any `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// Options configures a Bridge.
type Options struct {
	MQTT     MQTTClient
	Topics   mqtt.Topics
	Registry Registry
	QoS      byte
	Logger   Logger

	// Audit, when set, records every set command.
	Audit AuditLog

	// Now overrides time.Now.
	Now func() time.Time
}

// Bridge publishes accessory state and applies set commands.
//
// Thread Safety: All methods are safe for concurrent use. Refresh never
// calls back into an accessory, so it may be invoked while the accessory
// holds its own lock.
type Bridge struct {
	mqtt     MQTTClient
	topics   mqtt.Topics
	registry Registry
	qos      byte
	logger   Logger
	audit    AuditLog
	now      func() time.Time

	mu     sync.Mutex
	states map[string]*StateMessage
}

// New creates a Bridge.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("accessory registry is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Bridge{
		mqtt:     opts.MQTT,
		topics:   opts.Topics,
		registry: opts.Registry,
		qos:      opts.QoS,
		logger:   opts.Logger,
		audit:    opts.Audit,
		now:      opts.Now,
		states:   make(map[string]*StateMessage),
	}, nil
}

// Start publishes the initial snapshot of every accessory and subscribes
// to set commands.
func (b *Bridge) Start(_ context.Context) error {
	for _, acc := range b.registry.List() {
		snapshot := acc.Snapshot()

		b.mu.Lock()
		msg := &StateMessage{
			Accessory: acc.Name(),
			Type:      acc.Type(),
			State:     snapshot,
			Timestamp: b.now().UTC(),
		}
		b.states[acc.Name()] = msg
		payload, err := json.Marshal(msg)
		b.mu.Unlock()

		if err != nil {
			b.logWarn("encoding accessory state failed", "accessory", acc.Name(), "error", err)
			continue
		}
		b.publishState(acc.Name(), payload)
	}

	if err := b.mqtt.Subscribe(b.topics.AllAccessorySets(), b.qos, b.handleSet); err != nil {
		return fmt.Errorf("subscribe to set commands: %w", err)
	}
	return nil
}

// Stop drops the set command subscription.
func (b *Bridge) Stop() {
	if err := b.mqtt.Unsubscribe(b.topics.AllAccessorySets()); err != nil {
		b.logDebug("unsubscribe failed", "error", err)
	}
}

// Refresh merges a characteristic change into the accessory snapshot and
// republishes it.
func (b *Bridge) Refresh(accessory, characteristic string, value any) {
	b.mu.Lock()
	msg, ok := b.states[accessory]
	if !ok {
		msg = &StateMessage{Accessory: accessory, State: make(map[string]any)}
		b.states[accessory] = msg
	}
	msg.State[characteristic] = value
	msg.Timestamp = b.now().UTC()
	payload, err := json.Marshal(msg)
	b.mu.Unlock()

	if err != nil {
		b.logWarn("encoding accessory state failed", "accessory", accessory, "error", err)
		return
	}
	b.publishState(accessory, payload)
}

func (b *Bridge) publishState(accessory string, payload []byte) {
	if err := b.mqtt.Publish(b.topics.AccessoryState(accessory), payload, b.qos, true); err != nil {
		b.logDebug("publishing accessory state failed", "accessory", accessory, "error", err)
	}
}

// handleSet applies {prefix}/set/accessory/{name}/{characteristic}.
func (b *Bridge) handleSet(topic string, payload []byte) error {
	name, characteristic, ok := parseSetTopic(b.topics, topic)
	if !ok {
		b.logDebug("ignoring malformed set topic", "topic", topic)
		return nil
	}

	acc, err := b.registry.Get(name)
	if err != nil {
		b.logWarn("set command for unknown accessory", "accessory", name)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), setTimeout)
	defer cancel()
	value := decodeValue(payload)
	setErr := acc.Set(ctx, characteristic, value)
	if setErr != nil {
		b.logWarn("set command rejected",
			"accessory", name,
			"characteristic", characteristic,
			"error", setErr)
	}
	if b.audit != nil {
		if _, err := b.audit.Record(ctx, acc.Name(), characteristic, value, audit.SourceMQTT, "", setErr); err != nil {
			b.logWarn("recording set command failed", "accessory", name, "error", err)
		}
	}
	return nil
}

// parseSetTopic splits a set topic into accessory name and characteristic.
func parseSetTopic(topics mqtt.Topics, topic string) (string, string, bool) {
	prefix := strings.TrimSuffix(topics.AllAccessorySets(), "/+/+")
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", "", false
	}
	encoded, characteristic, ok := strings.Cut(rest, "/")
	if !ok || encoded == "" || characteristic == "" || strings.Contains(characteristic, "/") {
		return "", "", false
	}
	return mqtt.DecodeTopicSegment(encoded), characteristic, true
}

// decodeValue reads a JSON value, keeping numbers as json.Number. Anything
// else is returned as a trimmed string.
func decodeValue(payload []byte) any {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err == nil && !dec.More() {
		return v
	}
	return strings.TrimSpace(string(payload))
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}
