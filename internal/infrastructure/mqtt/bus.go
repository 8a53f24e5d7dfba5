package mqtt

import (
	"fmt"
	"sync"
)

// Subscriber is the part of Client a Bus needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Bus fans broker messages out to any number of listeners per topic.
//
// Client keeps one handler per topic, so two accessories watching the same
// sensor topic would replace each other. Bus subscribes once per topic and
// dispatches to every registered listener.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Bus struct {
	client Subscriber
	qos    byte

	mu        sync.Mutex
	listeners map[string]map[uint64]func(payload []byte)
	nextID    uint64
}

// NewBus creates a Bus on top of client.
func NewBus(client Subscriber, qos byte) *Bus {
	return &Bus{
		client:    client,
		qos:       qos,
		listeners: make(map[string]map[uint64]func(payload []byte)),
	}
}

// Subscribe registers fn for messages on topic and returns a function that
// removes it. The broker subscription is dropped with the last listener.
//
// Parameters:
//   - topic: Topic or pattern to watch
//   - fn: Called with the raw payload of every message
//
// Returns:
//   - func(): Cancels this listener; safe to call more than once
//   - error: If the broker subscription fails
func (b *Bus) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: listener cannot be nil", ErrSubscribeFailed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.listeners[topic]
	if !ok {
		if err := b.client.Subscribe(topic, b.qos, b.dispatcher(topic)); err != nil {
			return nil, err
		}
		set = make(map[uint64]func(payload []byte))
		b.listeners[topic] = set
	}

	b.nextID++
	id := b.nextID
	set[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}, nil
}

// ListenerCount returns the number of listeners on topic.
func (b *Bus) ListenerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[topic])
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.listeners[topic]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) > 0 {
		return
	}
	delete(b.listeners, topic)
	//nolint:errcheck // Best-effort; a failed unsubscribe only leaves an idle subscription
	b.client.Unsubscribe(topic)
}

func (b *Bus) dispatcher(topic string) MessageHandler {
	return func(_ string, payload []byte) error {
		b.mu.Lock()
		fns := make([]func([]byte), 0, len(b.listeners[topic]))
		for _, fn := range b.listeners[topic] {
			fns = append(fns, fn)
		}
		b.mu.Unlock()

		for _, fn := range fns {
			fn(payload)
		}
		return nil
	}
}
