package history

import "github.com/nerrad567/gray-logic-irbridge/internal/sensor"

// Notifier receives characteristic changes. It matches appliance.Notifier.
type Notifier interface {
	Refresh(accessory, characteristic string, value any)
}

// Recorders sends each reading to every recorder in order.
type Recorders []sensor.Recorder

// RecordReading implements sensor.Recorder.
func (rs Recorders) RecordReading(accessory string, kind sensor.Kind, value float64) {
	for _, r := range rs {
		r.RecordReading(accessory, kind, value)
	}
}

// Notifiers sends each change to every notifier in order.
type Notifiers []Notifier

// Refresh delivers the change to every notifier.
func (ns Notifiers) Refresh(accessory, characteristic string, value any) {
	for _, n := range ns {
		n.Refresh(accessory, characteristic, value)
	}
}
