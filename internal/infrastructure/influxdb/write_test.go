package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func tagValue(p *write.Point, key string) string {
	for _, tag := range p.TagList() {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func fieldValue(p *write.Point, key string) any {
	for _, field := range p.FieldList() {
		if field.Key == key {
			return field.Value
		}
	}
	return nil
}

func TestSensorPoint(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := sensorPoint("Bedroom AC", "temperature", 21.5, at)

	if p.Name() != measurementSensor {
		t.Errorf("Name() = %q, want %q", p.Name(), measurementSensor)
	}
	if got := tagValue(p, "accessory"); got != "Bedroom AC" {
		t.Errorf("accessory tag = %q", got)
	}
	if got := tagValue(p, "kind"); got != "temperature" {
		t.Errorf("kind tag = %q", got)
	}
	if got := fieldValue(p, "value"); got != 21.5 {
		t.Errorf("value field = %v, want 21.5", got)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestStatePoint(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{"bool true", true, 1, true},
		{"bool false", false, 0, true},
		{"int", 3, 3, true},
		{"float", 24.5, 24.5, true},
		{"string skipped", "auto", 0, false},
		{"nil skipped", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := statePoint("Fan", "rotationSpeed", tt.value, time.Now())
			if ok != tt.wantOK {
				t.Fatalf("statePoint() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got := fieldValue(p, "value"); got != tt.want {
				t.Errorf("value field = %v, want %v", got, tt.want)
			}
			if got := tagValue(p, "characteristic"); got != "rotationSpeed" {
				t.Errorf("characteristic tag = %q", got)
			}
		})
	}
}
