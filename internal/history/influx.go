package history

import "github.com/nerrad567/gray-logic-irbridge/internal/sensor"

// InfluxWriter is the part of the InfluxDB client used by Influx.
type InfluxWriter interface {
	WriteSensorReading(accessory, kind string, value float64)
	WriteStateChange(accessory, characteristic string, value any)
}

// Influx forwards readings and changes to InfluxDB. Writes are batched
// and non-blocking inside the client.
type Influx struct {
	w InfluxWriter
}

// NewInflux wraps an InfluxDB writer.
func NewInflux(w InfluxWriter) *Influx {
	return &Influx{w: w}
}

// RecordReading implements sensor.Recorder.
func (i *Influx) RecordReading(accessory string, kind sensor.Kind, value float64) {
	i.w.WriteSensorReading(accessory, string(kind), value)
}

// Refresh writes a characteristic change.
func (i *Influx) Refresh(accessory, characteristic string, value any) {
	i.w.WriteStateChange(accessory, characteristic, value)
}
