package appliance

import (
	"context"

	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// sensorWiring is where one monitor gets its readings from.
type sensorWiring struct {
	source   sensor.Source
	messages *sensor.MessageValues
	topics   Topics
	device   Device
}

// wireSensor picks the reading source: file, 1-Wire (temperature only),
// message bus, then the transport device.
func (b *base) wireSensor(cfg SensorConfig, kind sensor.Kind, host string, deps Deps) sensorWiring {
	var w sensorWiring

	switch {
	case cfg.TemperatureFilePath != "":
		w.source = sensor.FileSource{Path: cfg.TemperatureFilePath}
	case cfg.W1DeviceID != "" && kind == sensor.KindTemperature:
		w.source = sensor.W1Source{DeviceID: cfg.W1DeviceID, Root: deps.W1Root}
	case len(cfg.MQTTTopic) > 0 && deps.Messages != nil:
		w.messages = sensor.NewMessageValues()
		w.topics = cfg.MQTTTopic
		w.source = w.messages
	default:
		if deps.Transport == nil {
			b.log.Warn("no sensor source available", "accessory", b.name, "kind", kind)
			return w
		}
		device, err := deps.Transport.Device(host)
		if err != nil {
			b.log.Warn("sensor device unavailable", "accessory", b.name, "host", host, "error", err)
			return w
		}
		w.device = device
		w.source = sensor.DeviceSource{Device: device, Kind: kind}
	}
	return w
}

// attach registers the tasks feeding m and polling it every cfg interval.
func (b *base) attach(m *sensor.Monitor, w sensorWiring, deps Deps, interval float64, refresh sensor.Callback) {
	if w.device != nil {
		device := w.device
		b.addTask(func(ctx context.Context) {
			unsubscribe := device.Subscribe(func(r sensor.Reading) { m.Deliver(r) })
			<-ctx.Done()
			unsubscribe()
		})
	}

	if w.messages != nil {
		values, topics := w.messages, w.topics
		// A published value is answered like a poll so the reading reaches
		// refresh and the accessory's reading hook straight away.
		values.OnUpdate(func() { m.Request(context.Background(), refresh) })
		b.addTask(func(ctx context.Context) {
			var unsubscribes []func()
			for _, t := range topics {
				identifier := t.Identifier
				unsubscribe, err := deps.Messages.Subscribe(t.Topic, func(payload []byte) {
					if err := values.Handle(identifier, payload); err != nil {
						b.log.Warn("ignoring sensor message", "accessory", b.name, "topic", t.Topic, "error", err)
					}
				})
				if err != nil {
					b.log.Error("subscribing to sensor topic failed", "accessory", b.name, "topic", t.Topic, "error", err)
					continue
				}
				unsubscribes = append(unsubscribes, unsubscribe)
			}
			<-ctx.Done()
			for _, u := range unsubscribes {
				u()
			}
		})
	}

	every := secondsDuration(interval)
	b.addTask(func(ctx context.Context) {
		m.Run(ctx, every, refresh)
	})
}

func (b *base) newMonitor(kind sensor.Kind, source sensor.Source, offset float64, pseudo *float64, onReading func(sensor.Reading)) *sensor.Monitor {
	return sensor.NewMonitor(sensor.Options{
		Name:        b.name,
		Kind:        kind,
		Source:      source,
		Offset:      offset,
		Pseudo:      pseudo,
		OnReading:   onReading,
		Recorder:    b.recorder(),
		Observer:    b.sensorObserver(),
		Logger:      b.log,
		Now:         b.now,
		PollTimeout: b.sensorTimeout,
	})
}

// TemperatureSensor reports temperature (and humidity when the source has
// it) without controlling anything.
type TemperatureSensor struct {
	base

	cfg      TemperatureSensorConfig
	monitor  *sensor.Monitor
	humidity *float64
	battery  *float64
}

// NewTemperatureSensor creates a temperature sensor.
func NewTemperatureSensor(cfg TemperatureSensorConfig, deps Deps) (*TemperatureSensor, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &TemperatureSensor{cfg: cfg}
	s.base.init(cfg.Common, TypeTemperatureSensor, deps)

	w := s.wireSensor(cfg.SensorConfig, sensor.KindTemperature, cfg.Host, deps)
	s.monitor = s.newMonitor(sensor.KindTemperature, w.source, cfg.TemperatureAdjustment, cfg.PseudoDeviceTemperature, s.onReading)
	s.attach(s.monitor, w, deps, cfg.TemperatureUpdateFrequency, func(v float64) {
		s.refresh(CharCurrentTemperature, v)
	})

	s.exposeSensor(CharCurrentTemperature, s.peekTemperature, s.getTemperature)
	if !cfg.NoHumidity {
		s.expose(CharCurrentHumidity, s.peekHumidity, nil)
	}
	s.expose(CharBatteryLevel, s.peekBattery, nil)
	s.expose(CharTemperatureDisplayUnits, func() any { return displayUnits(cfg.Units) }, nil)
	return s, nil
}

// Monitors returns the temperature monitor.
func (s *TemperatureSensor) Monitors() []*sensor.Monitor {
	return []*sensor.Monitor{s.monitor}
}

func (s *TemperatureSensor) onReading(r sensor.Reading) {
	s.mu.Lock()
	if r.Humidity != nil && !s.cfg.NoHumidity {
		h := *r.Humidity + s.cfg.HumidityAdjustment
		s.humidity = &h
	}
	if r.Battery != nil {
		bat := *r.Battery
		s.battery = &bat
	}
	humidity := s.humidity
	s.mu.Unlock()

	if humidity != nil {
		s.refresh(CharCurrentHumidity, *humidity)
		if s.history != nil {
			s.history.RecordReading(s.name, sensor.KindHumidity, *humidity)
		}
	}
}

func (s *TemperatureSensor) getTemperature(ctx context.Context) (any, error) {
	return s.monitor.Read(ctx), nil
}

func (s *TemperatureSensor) peekTemperature() any {
	v, _ := s.monitor.Last()
	return v
}

func (s *TemperatureSensor) peekHumidity() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.humidity == nil {
		return 0.0
	}
	return *s.humidity
}

func (s *TemperatureSensor) peekBattery() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.battery == nil {
		return 100.0
	}
	return *s.battery
}

// HumiditySensor reports relative humidity.
type HumiditySensor struct {
	base

	monitor *sensor.Monitor
}

// NewHumiditySensor creates a humidity sensor.
func NewHumiditySensor(cfg HumiditySensorConfig, deps Deps) (*HumiditySensor, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &HumiditySensor{}
	s.base.init(cfg.Common, TypeHumiditySensor, deps)

	w := s.wireSensor(cfg.SensorConfig, sensor.KindHumidity, cfg.Host, deps)
	s.monitor = s.newMonitor(sensor.KindHumidity, w.source, cfg.HumidityAdjustment, nil, nil)
	s.attach(s.monitor, w, deps, cfg.HumidityUpdateFrequency, func(v float64) {
		s.refresh(CharCurrentHumidity, v)
	})

	s.exposeSensor(CharCurrentHumidity, s.peekHumidity, s.getHumidity)
	return s, nil
}

// Monitors returns the humidity monitor.
func (s *HumiditySensor) Monitors() []*sensor.Monitor {
	return []*sensor.Monitor{s.monitor}
}

func (s *HumiditySensor) getHumidity(ctx context.Context) (any, error) {
	return s.monitor.Read(ctx), nil
}

func (s *HumiditySensor) peekHumidity() any {
	v, _ := s.monitor.Last()
	return v
}

// Temperature display units.
const (
	UnitsCelsius    = 0
	UnitsFahrenheit = 1
)

func displayUnits(units string) int {
	if units == "f" {
		return UnitsFahrenheit
	}
	return UnitsCelsius
}
