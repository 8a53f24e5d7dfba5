package history

import (
	"testing"

	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

type fakeSink struct {
	readings []float64
	changes  []string
}

func (f *fakeSink) RecordReading(_ string, _ sensor.Kind, value float64) {
	f.readings = append(f.readings, value)
}

func (f *fakeSink) Refresh(_, characteristic string, _ any) {
	f.changes = append(f.changes, characteristic)
}

type fakeInfluxWriter struct {
	kinds []string
	chars []string
}

func (f *fakeInfluxWriter) WriteSensorReading(_, kind string, _ float64) {
	f.kinds = append(f.kinds, kind)
}

func (f *fakeInfluxWriter) WriteStateChange(_, characteristic string, _ any) {
	f.chars = append(f.chars, characteristic)
}

func TestFanout(t *testing.T) {
	a, b := &fakeSink{}, &fakeSink{}

	Recorders{a, b}.RecordReading("Fan", sensor.KindHumidity, 55)
	Notifiers{a, b}.Refresh("Fan", "rotationSpeed", 50)

	for i, s := range []*fakeSink{a, b} {
		if len(s.readings) != 1 || s.readings[0] != 55 {
			t.Errorf("sink %d readings = %v, want [55]", i, s.readings)
		}
		if len(s.changes) != 1 || s.changes[0] != "rotationSpeed" {
			t.Errorf("sink %d changes = %v, want [rotationSpeed]", i, s.changes)
		}
	}
}

func TestInflux(t *testing.T) {
	w := &fakeInfluxWriter{}
	sink := NewInflux(w)

	sink.RecordReading("Bedroom AC", sensor.KindTemperature, 21)
	sink.Refresh("Bedroom AC", "targetTemperature", 24)

	if len(w.kinds) != 1 || w.kinds[0] != "temperature" {
		t.Errorf("kinds = %v, want [temperature]", w.kinds)
	}
	if len(w.chars) != 1 || w.chars[0] != "targetTemperature" {
		t.Errorf("characteristics = %v, want [targetTemperature]", w.chars)
	}
}
