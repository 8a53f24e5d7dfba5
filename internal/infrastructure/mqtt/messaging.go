package mqtt

import (
	"fmt"
	"sort"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	maxQoS = 2

	// maxPayloadSize matches the common broker default message limit.
	maxPayloadSize = 1 << 20
)

// Publish sends payload to topic and waits for the broker's acknowledgement
// (for qos > 0).
//
// Parameters:
//   - topic: Exact topic, no wildcards
//   - payload: Message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps it for late subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// Subscribe routes messages on topic (wildcards allowed) to handler and
// keeps the subscription across reconnects. A second Subscribe on the
// same topic replaces the handler; use Bus to share a topic.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := await(c.paho.Subscribe(topic, qos, c.deliver(handler)), ErrSubscribeFailed); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe stops routing topic. The subscription is forgotten even
// when the broker call fails, so it is not restored on reconnect.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Unsubscribe(topic), ErrUnsubscribeFailed)
}

// Subscriptions lists the tracked topics in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		out = append(out, topic)
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await waits for tok and wraps its failure in base.
func await(tok pahomqtt.Token, base error) error {
	if !tok.WaitTimeout(operationTimeout) {
		return fmt.Errorf("%w: %w after %v", base, ErrTimeout, operationTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", base, err)
	}
	return nil
}
