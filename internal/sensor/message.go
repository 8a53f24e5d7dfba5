package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Value identifiers accepted from the message bus.
const (
	IdentifierUnknown     = "unknown"
	IdentifierTemperature = "temperature"
	IdentifierHumidity    = "humidity"
	IdentifierBattery     = "battery"
	IdentifierCombined    = "combined"
)

// Key families searched in JSON payloads, in priority order.
var (
	humidityKeys    = []string{"Hum", "hum", "Humidity", "humidity", "RelativeHumidity", "relativehumidity"}
	batteryKeys     = []string{"Batt", "batt", "Battery", "battery"}
	temperatureKeys = []string{"temp", "Temp", "temperature", "Temperature"}
)

// MessageValues caches the latest values received over the message bus and
// serves them as a synchronous Source.
type MessageValues struct {
	mu       sync.RWMutex
	values   map[string]float64
	onUpdate func()
}

// NewMessageValues creates an empty cache.
func NewMessageValues() *MessageValues {
	return &MessageValues{values: make(map[string]float64)}
}

// OnUpdate registers fn to run after every accepted message.
func (m *MessageValues) OnUpdate(fn func()) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// Handle stores the value(s) carried by payload.
//
// JSON objects are searched for humidity, battery and temperature fields.
// The identifier narrows the search: a "temperature" topic is never read for
// humidity, for example. Anything else must be a bare number, stored under
// the identifier itself.
func (m *MessageValues) Handle(identifier string, payload []byte) error {
	switch identifier {
	case IdentifierUnknown, IdentifierTemperature, IdentifierHumidity, IdentifierBattery, IdentifierCombined:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	found, isObject := parseObject(identifier, payload)
	if !isObject {
		raw := strings.TrimSpace(string(payload))
		if raw == "" {
			return fmt.Errorf("%w: empty message", ErrNoValue)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoValue, err)
		}
		found = map[string]float64{identifier: v}
	}

	m.mu.Lock()
	for k, v := range found {
		m.values[k] = v
	}
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}

// ValueFor returns the cached value for identifier, falling back to the
// value received without an identifier.
func (m *MessageValues) ValueFor(identifier string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.values[identifier]; ok {
		return v, true
	}
	v, ok := m.values[IdentifierUnknown]
	return v, ok
}

// Poll implements Source. A missing temperature reads as 0. Humidity is
// only taken from a humidity value, never from an untagged one.
func (m *MessageValues) Poll(_ context.Context) (Reading, error) {
	var r Reading

	temp, _ := m.ValueFor(IdentifierTemperature)
	r.Temperature = &temp

	m.mu.RLock()
	if v, ok := m.values[IdentifierHumidity]; ok {
		r.Humidity = &v
	}
	if v, ok := m.values[IdentifierBattery]; ok {
		r.Battery = &v
	}
	m.mu.RUnlock()

	return r, nil
}

// parseObject searches a JSON object payload. isObject is false when the
// payload is not a JSON object or array.
func parseObject(identifier string, payload []byte) (map[string]float64, bool) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, false
	}
	switch doc.(type) {
	case map[string]any, []any:
	default:
		return nil, false
	}

	found := make(map[string]float64)
	lookup := func(keys []string) (float64, bool) {
		for _, k := range keys {
			if raw, ok := findKey(doc, k); ok {
				if v, ok := toFloat(raw); ok {
					return v, true
				}
			}
		}
		return 0, false
	}

	if identifier != IdentifierTemperature && identifier != IdentifierBattery {
		if v, ok := lookup(humidityKeys); ok {
			found[IdentifierHumidity] = v
		}
	}
	if identifier != IdentifierTemperature && identifier != IdentifierHumidity {
		if v, ok := lookup(batteryKeys); ok {
			found[IdentifierBattery] = v
		}
	}
	if identifier != IdentifierBattery && identifier != IdentifierHumidity {
		if v, ok := lookup(temperatureKeys); ok {
			found[IdentifierTemperature] = v
		}
	}
	return found, true
}

// findKey walks doc depth-first, visiting object keys in sorted order, and
// returns the first value stored under key.
func findKey(doc any, key string) (any, bool) {
	switch v := doc.(type) {
	case map[string]any:
		names := make([]string, 0, len(v))
		for k := range v {
			names = append(names, k)
		}
		sort.Strings(names)

		for _, k := range names {
			if k == key {
				return v[k], true
			}
			if found, ok := findKey(v[k], key); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := findKey(item, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
