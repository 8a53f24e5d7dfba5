package broadlink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// Health statuses carried on the health topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// CommandMessage asks the daemon to transmit a code.
// Topic: {prefix}/command/broadlink/{mac}
// QoS: 1, Retained: No
type CommandMessage struct {
	// RequestID correlates the command in daemon logs.
	RequestID string `json:"request_id"`

	// Data is the hex-encoded code as recorded by the device.
	Data string `json:"data"`

	Timestamp time.Time `json:"timestamp"`
}

// RequestMessage asks the daemon to read a device sensor. The answer
// arrives later as a StateMessage.
// Topic: {prefix}/request/broadlink/{mac}
type RequestMessage struct {
	RequestID string      `json:"request_id"`
	Kind      sensor.Kind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
}

// StateMessage carries sensor values reported by a device. Absent fields
// were not measured.
// Topic: {prefix}/state/broadlink/{mac}
type StateMessage struct {
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Battery     *float64  `json:"battery,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Reading converts the message into a sensor reading.
func (m StateMessage) Reading() sensor.Reading {
	return sensor.Reading{
		Temperature: m.Temperature,
		Humidity:    m.Humidity,
		Battery:     m.Battery,
	}
}

// HealthMessage is the daemon's heartbeat for one device.
// Topic: {prefix}/health/broadlink/{mac}
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Online reports whether the heartbeat declares the device usable.
func (m HealthMessage) Online() bool {
	return m.Status == StatusOnline
}

// ParseStateMessage decodes a state payload.
func ParseStateMessage(payload []byte) (StateMessage, error) {
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return StateMessage{}, fmt.Errorf("parsing state message: %w", err)
	}
	return msg, nil
}

// ParseHealthMessage decodes a heartbeat payload. A bare "online" or
// "offline" string is accepted as well as the JSON form.
func ParseHealthMessage(payload []byte) (HealthMessage, error) {
	switch string(payload) {
	case StatusOnline, StatusOffline:
		return HealthMessage{Status: string(payload)}, nil
	}

	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return HealthMessage{}, fmt.Errorf("parsing health message: %w", err)
	}
	if msg.Status != StatusOnline && msg.Status != StatusOffline {
		return HealthMessage{}, fmt.Errorf("parsing health message: unknown status %q", msg.Status)
	}
	return msg, nil
}
