package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the bridge.
const (
	measurementSensor    = "sensor_reading"
	measurementState     = "accessory_state"
	measurementTransmit  = "transmission"
	measurementAutoOnOff = "auto_transition"
)

// WriteSensorReading records one adjusted temperature or humidity sample.
//
// Parameters:
//   - accessory: Accessory that owns the sensor (e.g., "Bedroom AC")
//   - kind: "temperature" or "humidity"
//   - value: Reading after the accessory's adjustment
func (c *Client) WriteSensorReading(accessory, kind string, value float64) {
	c.write(sensorPoint(accessory, kind, value, c.now()))
}

// WriteStateChange records a characteristic change. Booleans are stored as
// 0/1 so they graph next to numeric values; other non-numeric values are
// skipped.
func (c *Client) WriteStateChange(accessory, characteristic string, value any) {
	if p, ok := statePoint(accessory, characteristic, value, c.now()); ok {
		c.write(p)
	}
}

// WriteTransmission counts one code sent through the gateway, tagged
// result=ok or result=error.
func (c *Client) WriteTransmission(accessory string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.write(countPoint(measurementTransmit, "accessory", accessory, "result", result, c.now()))
}

// WriteAutoTransition counts an automatic on/off decision.
func (c *Client) WriteAutoTransition(accessory, action string) {
	c.write(countPoint(measurementAutoOnOff, "accessory", accessory, "action", action, c.now()))
}

func sensorPoint(accessory, kind string, value float64, at time.Time) *write.Point {
	return write.NewPoint(measurementSensor,
		map[string]string{"accessory": accessory, "kind": kind},
		map[string]any{"value": value},
		at,
	)
}

func statePoint(accessory, characteristic string, value any, at time.Time) (*write.Point, bool) {
	var field float64
	switch v := value.(type) {
	case bool:
		if v {
			field = 1
		}
	case int:
		field = float64(v)
	case int64:
		field = float64(v)
	case float32:
		field = float64(v)
	case float64:
		field = v
	default:
		return nil, false
	}
	return write.NewPoint(measurementState,
		map[string]string{"accessory": accessory, "characteristic": characteristic},
		map[string]any{"value": field},
		at,
	), true
}

// countPoint builds a single-increment event point with two tags.
func countPoint(measurement, k1, v1, k2, v2 string, at time.Time) *write.Point {
	return write.NewPoint(measurement,
		map[string]string{k1: v1, k2: v2},
		map[string]any{"count": 1},
		at,
	)
}
