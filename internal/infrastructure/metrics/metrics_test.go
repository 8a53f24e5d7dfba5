package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeTimeline struct {
	transmissions []bool
	actions       []string
}

func (f *fakeTimeline) WriteTransmission(_ string, ok bool) {
	f.transmissions = append(f.transmissions, ok)
}

func (f *fakeTimeline) WriteAutoTransition(_, action string) {
	f.actions = append(f.actions, action)
}

func TestRecorder_ObserveTransmit(t *testing.T) {
	tl := &fakeTimeline{}
	r := New(tl)

	r.ObserveTransmit("Bedroom AC", nil)
	r.ObserveTransmit("Bedroom AC", nil)
	r.ObserveTransmit("Bedroom AC", errors.New("offline"))

	if got := testutil.ToFloat64(r.transmissions.WithLabelValues("Bedroom AC", ResultOK)); got != 2 {
		t.Errorf("ok transmissions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.transmissions.WithLabelValues("Bedroom AC", ResultError)); got != 1 {
		t.Errorf("error transmissions = %v, want 1", got)
	}
	if len(tl.transmissions) != 3 || tl.transmissions[2] {
		t.Errorf("timeline transmissions = %v, want [true true false]", tl.transmissions)
	}
}

func TestRecorder_Gauges(t *testing.T) {
	r := New(nil)

	r.ObserveReading("Lounge Fan", sensor.KindTemperature, 22.5)
	r.ObserveReading("Lounge Fan", sensor.KindTemperature, 23)
	r.ObservePending("Lounge Fan", sensor.KindHumidity, 3)

	if got := testutil.ToFloat64(r.sensorReading.WithLabelValues("Lounge Fan", "temperature")); got != 23 {
		t.Errorf("sensor_reading = %v, want 23", got)
	}
	if got := testutil.ToFloat64(r.pending.WithLabelValues("Lounge Fan", "humidity")); got != 3 {
		t.Errorf("pending_callbacks = %v, want 3", got)
	}
}

func TestRecorder_ObserveAutoAction(t *testing.T) {
	tl := &fakeTimeline{}
	r := New(tl)

	r.ObserveAutoAction("Humidifier", autoonoff.ActionNone)
	r.ObserveAutoAction("Humidifier", autoonoff.ActionLow)
	r.ObserveAutoAction("Humidifier", autoonoff.ActionOff)

	if got := testutil.ToFloat64(r.autoTransitions.WithLabelValues("Humidifier", "low")); got != 1 {
		t.Errorf("low transitions = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.autoTransitions); got != 2 {
		t.Errorf("series = %d, want 2", got)
	}
	if strings.Join(tl.actions, ",") != "low,off" {
		t.Errorf("timeline actions = %v, want [low off]", tl.actions)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New(nil)
	r.ObserveTransmit("Bedroom AC", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `irbridge_transmissions_total{accessory="Bedroom AC",result="ok"} 1`) {
		t.Errorf("exposition missing transmissions counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go runtime collector")
	}
}
