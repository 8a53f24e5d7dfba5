package sensor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseFile(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantTemp *float64
		wantHum  *float64
		wantBatt *float64
		wantErr  bool
	}{
		{name: "bare number", input: "23.5\n", wantTemp: Float(23.5)},
		{name: "bare integer", input: "19", wantTemp: Float(19)},
		{name: "key value lines", input: "temperature:21.5\nhumidity:40\nbattery:88\n", wantTemp: Float(21.5), wantHum: Float(40), wantBatt: Float(88)},
		{name: "crlf and spaces", input: "humidity: 55\r\ntemperature: 20\r\n", wantTemp: Float(20), wantHum: Float(55)},
		{name: "unknown keys ignored", input: "pressure:1013\ntemperature:18\n", wantTemp: Float(18)},
		{name: "empty file", input: "  \n", wantErr: true},
		{name: "garbage", input: "hello world\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFile([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNoValue) {
					t.Errorf("ParseFile() error = %v, want ErrNoValue", err)
				}
				return
			}
			assertFloat(t, "temperature", got.Temperature, tt.wantTemp)
			assertFloat(t, "humidity", got.Humidity, tt.wantHum)
			assertFloat(t, "battery", got.Battery, tt.wantBatt)
		})
	}
}

func TestFileSource_Poll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp.txt")
	if err := os.WriteFile(path, []byte("22.25"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r, err := FileSource{Path: path}.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	assertFloat(t, "temperature", r.Temperature, Float(22.25))

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing")}).Poll(context.Background()); err == nil {
		t.Error("Poll() on missing file should fail")
	}
}

func TestParseW1(t *testing.T) {
	sample := "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
	r, err := ParseW1([]byte(sample))
	if err != nil {
		t.Fatalf("ParseW1() error = %v", err)
	}
	assertFloat(t, "temperature", r.Temperature, Float(23.125))

	if _, err := ParseW1([]byte("72 01 4b 46 : crc=57 NO\n")); !errors.Is(err, ErrNoValue) {
		t.Errorf("ParseW1() error = %v, want ErrNoValue", err)
	}
}

func TestW1Source_Poll(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "28-000005e2fdc3")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "w1_slave"), []byte("aa : crc=aa YES\naa t=-1500\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r, err := W1Source{DeviceID: "28-000005e2fdc3", Root: root}.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	assertFloat(t, "temperature", r.Temperature, Float(-1.5))
}

type fakeDevice struct {
	active       bool
	temperatures int
	humidities   int
}

func (d *fakeDevice) Active() bool { return d.active }

func (d *fakeDevice) CheckTemperature(context.Context) error {
	d.temperatures++
	return nil
}

func (d *fakeDevice) CheckHumidity(context.Context) error {
	d.humidities++
	return nil
}

func TestDeviceSource_Poll(t *testing.T) {
	dev := &fakeDevice{active: true}

	if _, err := (DeviceSource{Device: dev}).Poll(context.Background()); !errors.Is(err, ErrPending) {
		t.Errorf("Poll() error = %v, want ErrPending", err)
	}
	if _, err := (DeviceSource{Device: dev, Kind: KindHumidity}).Poll(context.Background()); !errors.Is(err, ErrPending) {
		t.Errorf("Poll() error = %v, want ErrPending", err)
	}
	if dev.temperatures != 1 || dev.humidities != 1 {
		t.Errorf("checks = %d/%d, want 1/1", dev.temperatures, dev.humidities)
	}

	dev.active = false
	if _, err := (DeviceSource{Device: dev}).Poll(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("Poll() error = %v, want ErrInactive", err)
	}
	if _, err := (DeviceSource{}).Poll(context.Background()); !errors.Is(err, ErrInactive) {
		t.Errorf("Poll() without device error = %v, want ErrInactive", err)
	}
}

func TestMessageValues_Handle(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		payload    string
		wantTemp   *float64
		wantHum    *float64
		wantBatt   *float64
		wantErr    error
	}{
		{name: "bare temperature", identifier: "temperature", payload: "21.5", wantTemp: Float(21.5)},
		{name: "untagged bare value", identifier: "unknown", payload: " 19 ", wantTemp: Float(19)},
		{name: "combined json", identifier: "combined", payload: `{"Temp": 20.5, "Humidity": 44, "battery": 90}`, wantTemp: Float(20.5), wantHum: Float(44), wantBatt: Float(90)},
		{name: "nested json", identifier: "unknown", payload: `{"AM2301": {"Temperature": "18.2", "Humidity": 61}}`, wantTemp: Float(18.2), wantHum: Float(61)},
		{name: "temperature topic ignores humidity", identifier: "temperature", payload: `{"temp": 22, "hum": 50}`, wantTemp: Float(22)},
		{name: "humidity topic ignores temperature", identifier: "humidity", payload: `{"temp": 22, "hum": 50}`, wantHum: Float(50)},
		{name: "priority order", identifier: "combined", payload: `{"temperature": 30, "temp": 20}`, wantTemp: Float(20)},
		{name: "bad identifier", identifier: "pressure", payload: "1", wantErr: ErrInvalidIdentifier},
		{name: "empty", identifier: "temperature", payload: "  ", wantErr: ErrNoValue},
		{name: "not a number", identifier: "temperature", payload: "warm", wantErr: ErrNoValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mv := NewMessageValues()
			err := mv.Handle(tt.identifier, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			r, _ := mv.Poll(context.Background())
			wantTemp := tt.wantTemp
			if wantTemp == nil {
				wantTemp = Float(0)
			}
			assertFloat(t, "temperature", r.Temperature, wantTemp)
			assertFloat(t, "humidity", r.Humidity, tt.wantHum)
			assertFloat(t, "battery", r.Battery, tt.wantBatt)
		})
	}
}

func TestMessageValues_OnUpdate(t *testing.T) {
	mv := NewMessageValues()
	calls := 0
	mv.OnUpdate(func() { calls++ })

	_ = mv.Handle("temperature", []byte("20"))
	_ = mv.Handle("temperature", []byte("bad"))

	if calls != 1 {
		t.Errorf("OnUpdate calls = %d, want 1", calls)
	}
}

func assertFloat(t *testing.T, field string, got, want *float64) {
	t.Helper()
	switch {
	case got == nil && want == nil:
	case got == nil || want == nil:
		t.Errorf("%s = %v, want %v", field, deref(got), deref(want))
	case *got != *want:
		t.Errorf("%s = %v, want %v", field, *got, *want)
	}
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
