package appliance

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
	"github.com/nerrad567/gray-logic-irbridge/internal/transmit"
)

// Heater/cooler current states.
const (
	HeaterCoolerInactive = 0
	HeaterCoolerIdle     = 1
	HeaterCoolerHeating  = 2
	HeaterCoolerCooling  = 3
)

// Heater/cooler target states. Auto is not supported.
const (
	TargetHeaterCoolerAuto = 0
	TargetHeaterCoolerHeat = 1
	TargetHeaterCoolerCool = 2
)

// turnOnCodePause separates the on code from the state code.
const turnOnCodePause = 1.0

// heatCoolMode describes one of the heat and cool code tables.
type heatCoolMode struct {
	table     *codes.Entry
	available bool
	optional  codes.Optional
}

// HeaterCooler is a heater and/or cooler with a threshold temperature per
// mode. Temperature codes may be nested by swing and rotation speed; the
// nesting is discovered from the key shapes of the code table.
type HeaterCooler struct {
	base

	cfg     HeaterCoolerConfig
	monitor *sensor.Monitor
	heat    heatCoolMode
	cool    heatCoolMode

	active           bool
	target           int
	current          int
	coolingThreshold float64
	heatingThreshold float64
	rotationSpeed    int
	swing            bool
	humidity         *float64
}

// NewHeaterCooler creates a heater/cooler.
func NewHeaterCooler(cfg HeaterCoolerConfig, deps Deps) (*HeaterCooler, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &HeaterCooler{
		cfg:              cfg,
		coolingThreshold: *cfg.CoolingThresholdTemperature,
		heatingThreshold: *cfg.HeatingThresholdTemperature,
		rotationSpeed:    cfg.DefaultRotationSpeed,
	}
	h.base.init(cfg.Common, TypeHeaterCooler, deps)

	h.heat = discoverMode(cfg.Data.Get(codes.ModeHeat))
	h.cool = discoverMode(cfg.Data.Get(codes.ModeCool))

	h.target = TargetHeaterCoolerHeat
	if cfg.DefaultMode == codes.ModeCool || !h.heat.available {
		h.target = TargetHeaterCoolerCool
	}

	pseudo := cfg.DefaultNowTemperature
	if pseudo == nil {
		pseudo = cfg.PseudoDeviceTemperature
	}
	w := h.wireSensor(cfg.SensorConfig, sensor.KindTemperature, cfg.Host, deps)
	h.monitor = h.newMonitor(sensor.KindTemperature, w.source, cfg.TemperatureAdjustment, pseudo, h.onReading)
	h.attach(h.monitor, w, deps, cfg.TemperatureUpdateFrequency, func(v float64) {
		h.refresh(CharCurrentTemperature, v)
	})

	h.expose(CharActive, h.peekActive, h.setActiveValue)
	h.expose(CharTargetState, h.peekTarget, h.setTargetValue)
	h.expose(CharCurrentState, h.peekCurrent, nil)
	h.exposeSensor(CharCurrentTemperature, h.peekTemperature, h.getTemperature)
	if h.cool.available {
		h.expose(CharCoolingThreshold, h.peekCoolingThreshold, h.setCoolingThresholdValue)
	}
	if h.heat.available {
		h.expose(CharHeatingThreshold, h.peekHeatingThreshold, h.setHeatingThresholdValue)
	}
	if h.heat.optional.RotationSpeed || h.cool.optional.RotationSpeed {
		h.expose(CharRotationSpeed, h.peekRotationSpeed, h.setRotationSpeedValue)
	}
	if h.heat.optional.SwingMode || h.cool.optional.SwingMode || h.data.Has("swingToggle") ||
		(h.data.Has("swingOn") && h.data.Has("swingOff")) {
		h.expose(CharSwingMode, h.peekSwing, h.setSwingValue)
	}
	if !cfg.NoHumidity {
		h.expose(CharCurrentHumidity, h.peekHumidity, nil)
	}
	h.expose(CharTemperatureDisplayUnits, func() any { return displayUnits(cfg.Units) }, nil)
	return h, nil
}

func discoverMode(table *codes.Entry) heatCoolMode {
	m := heatCoolMode{table: table}
	m.available = table.Has("on") && table.Has("off")
	if m.available {
		m.optional = codes.Discover(table.Get("temperatureCodes"))
	}
	return m
}

// Monitors returns the temperature monitor.
func (h *HeaterCooler) Monitors() []*sensor.Monitor {
	return []*sensor.Monitor{h.monitor}
}

// State returns whether the device is active and its target and current
// states.
func (h *HeaterCooler) State() (active bool, target, current int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, h.target, h.current
}

func (h *HeaterCooler) mode(target int) heatCoolMode {
	if target == TargetHeaterCoolerCool {
		return h.cool
	}
	return h.heat
}

// decode resolves the code to send for a change of updating under the
// current state. ok is false when no code applies.
func (h *HeaterCooler) decode(updating codes.Characteristic) (transmit.Payload, bool) {
	h.mu.Lock()
	active, target := h.active, h.target
	temp := h.heatingThreshold
	if target == TargetHeaterCoolerCool {
		temp = h.coolingThreshold
	}
	st := codes.HierarchyState{Swing: h.swing, RotationSpeed: h.rotationSpeed}
	h.mu.Unlock()

	m := h.mode(target)
	if !m.available {
		h.log.Warn("mode not configured", "accessory", h.name, "target", target)
		return transmit.Payload{}, false
	}
	if updating == codes.CharActive && !active {
		return m.table.Code("off"), true
	}
	if !m.optional.TemperatureCodes {
		return m.table.Code("on"), true
	}

	if h.cfg.TemperatureUnits == "f" {
		temp = codes.CToF(temp)
	}
	entry := m.table.Get("temperatureCodes").Get(codes.TemperatureKey(temp))
	if entry.IsEmpty() {
		h.log.Warn("no temperature code", "accessory", h.name, "temperature", temp, "units", h.cfg.TemperatureUnits)
		return transmit.Payload{}, false
	}

	leaf, ok := codes.Resolve(entry, codes.Hierarchy, updating, st)
	if !ok {
		h.log.Warn("no code for characteristic", "accessory", h.name, "characteristic", updating.String())
		return transmit.Payload{}, false
	}
	return leaf.Payload(), true
}

func (h *HeaterCooler) updateCurrent() {
	h.mu.Lock()
	state := HeaterCoolerInactive
	if h.active {
		state = HeaterCoolerHeating
		if h.target == TargetHeaterCoolerCool {
			state = HeaterCoolerCooling
		}
	}
	h.current = state
	h.mu.Unlock()

	h.refresh(CharCurrentState, state)
}

func (h *HeaterCooler) peekActive() any {
	active, _, _ := h.State()
	return active
}

func (h *HeaterCooler) setActiveValue(ctx context.Context, value any) error {
	active, err := toBool(value)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.active
	if prev == active && h.preventResend {
		h.mu.Unlock()
		return nil
	}
	h.active = active
	target := h.target
	h.mu.Unlock()

	h.resetTransmissions()
	h.refresh(CharActive, active)

	payload, ok := h.decode(codes.CharActive)
	if ok && active && !prev && *h.cfg.TurnOnWhenOff {
		h.log.Debug("adding on code first", "accessory", h.name)
		payload = transmit.Prepend(h.mode(target).table.Code("on"), turnOnCodePause, payload)
	}
	if ok {
		h.send(ctx, payload)
	}

	h.updateCurrent()
	if active {
		h.mu.Lock()
		swing, speed := h.swing, h.rotationSpeed
		h.mu.Unlock()
		h.refresh(CharSwingMode, swing)
		h.refresh(CharRotationSpeed, speed)
	}
	return nil
}

func (h *HeaterCooler) peekTarget() any {
	_, target, _ := h.State()
	return target
}

func (h *HeaterCooler) setTargetValue(ctx context.Context, value any) error {
	target, err := enumValue(value, codes.ModeAuto, codes.ModeHeat, codes.ModeCool)
	if err != nil {
		return err
	}
	if target == TargetHeaterCoolerAuto || !h.mode(target).available {
		return fmt.Errorf("%w: target state %d", ErrUnsupportedMode, target)
	}

	h.mu.Lock()
	if h.target == target {
		h.mu.Unlock()
		return nil
	}
	h.target = target
	active := h.active
	h.mu.Unlock()

	h.resetTransmissions()
	h.refresh(CharTargetState, target)
	h.log.Info("changing target state", "accessory", h.name, "target", target)

	if !active {
		return nil
	}
	if payload, ok := h.decode(codes.CharTargetState); ok {
		h.send(ctx, payload)
	}
	h.updateCurrent()
	return nil
}

func (h *HeaterCooler) peekCurrent() any {
	_, _, current := h.State()
	return current
}

func (h *HeaterCooler) peekCoolingThreshold() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.coolingThreshold
}

func (h *HeaterCooler) peekHeatingThreshold() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.heatingThreshold
}

func (h *HeaterCooler) setCoolingThresholdValue(ctx context.Context, value any) error {
	return h.setThreshold(ctx, TargetHeaterCoolerCool, value)
}

func (h *HeaterCooler) setHeatingThresholdValue(ctx context.Context, value any) error {
	return h.setThreshold(ctx, TargetHeaterCoolerHeat, value)
}

// setThreshold stores the threshold of mode and sends it when mode is the
// active target.
func (h *HeaterCooler) setThreshold(ctx context.Context, mode int, value any) error {
	temp, err := toFloat(value)
	if err != nil {
		return err
	}
	temp = snapTemperature(temp, h.cfg.TempStepSize)
	minT, maxT := *h.cfg.MinTemperature, *h.cfg.MaxTemperature
	if temp < minT || temp > maxT {
		h.log.Warn("threshold out of range", "accessory", h.name, "temperature", temp, "min", minT, "max", maxT)
		return fmt.Errorf("%w: %v not in %v..%v", ErrOutOfRange, temp, minT, maxT)
	}

	name := CharHeatingThreshold
	field := &h.heatingThreshold
	if mode == TargetHeaterCoolerCool {
		name = CharCoolingThreshold
		field = &h.coolingThreshold
	}

	h.mu.Lock()
	if *field == temp && h.preventResend {
		h.mu.Unlock()
		return nil
	}
	*field = temp
	send := h.active && h.target == mode
	h.mu.Unlock()

	h.refresh(name, temp)
	if !send {
		return nil
	}

	h.resetTransmissions()
	if payload, ok := h.decode(codes.CharThreshold); ok {
		h.log.Info("changing temperature", "accessory", h.name, "temperature", temp)
		h.send(ctx, payload)
	}
	return nil
}

// snapTemperature rounds temp to the nearest multiple of step.
func snapTemperature(temp, step float64) float64 {
	if step <= 0 {
		return temp
	}
	snapped := math.Round(temp/step) * step
	// Fractional steps such as 0.1 leave float noise behind.
	return math.Round(snapped*100) / 100
}

func (h *HeaterCooler) peekRotationSpeed() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rotationSpeed
}

func (h *HeaterCooler) setRotationSpeedValue(ctx context.Context, value any) error {
	speed, err := toInt(value)
	if err != nil {
		return err
	}
	if speed < 0 || speed > 100 {
		return fmt.Errorf("%w: rotation speed %d not in 0..100", ErrOutOfRange, speed)
	}

	h.mu.Lock()
	prev := h.rotationSpeed
	h.mu.Unlock()

	// 0 means off, which is handled through CharActive.
	if speed == 0 {
		h.refresh(CharRotationSpeed, prev)
		return nil
	}
	speed = snapSpeed(speed, h.cfg.FanStepSize)
	if speed == prev && h.preventResend {
		return nil
	}

	h.mu.Lock()
	h.rotationSpeed = speed
	h.mu.Unlock()
	h.resetTransmissions()

	payload, ok := h.decode(codes.CharRotationSpeed)
	if !ok {
		h.log.Warn("fan speed codes not found, reverting", "accessory", h.name, "speed", speed)
		h.mu.Lock()
		h.rotationSpeed = prev
		h.mu.Unlock()
		h.refresh(CharRotationSpeed, prev)
		return nil
	}
	h.refresh(CharRotationSpeed, speed)
	h.send(ctx, payload)
	return nil
}

func (h *HeaterCooler) peekSwing() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.swing
}

func (h *HeaterCooler) setSwingValue(ctx context.Context, value any) error {
	swing, err := toBool(value)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.swing
	if prev == swing && h.preventResend {
		h.mu.Unlock()
		return nil
	}
	h.swing = swing
	h.mu.Unlock()
	h.resetTransmissions()

	var payload transmit.Payload
	ok := true
	switch {
	case h.data.Has("swingOn") && h.data.Has("swingOff"):
		payload = h.data.Code("swingOff")
		if swing {
			payload = h.data.Code("swingOn")
		}
	case h.data.Has("swingToggle"):
		payload = h.data.Code("swingToggle")
	default:
		payload, ok = h.decode(codes.CharSwing)
	}

	if !ok {
		h.log.Warn("swing codes not found, reverting", "accessory", h.name)
		h.mu.Lock()
		h.swing = prev
		h.mu.Unlock()
		h.refresh(CharSwingMode, prev)
		return nil
	}
	h.refresh(CharSwingMode, swing)
	h.send(ctx, payload)
	return nil
}

func (h *HeaterCooler) onReading(r sensor.Reading) {
	if r.Humidity == nil || h.cfg.NoHumidity {
		return
	}
	v := *r.Humidity + h.cfg.HumidityAdjustment

	h.mu.Lock()
	h.humidity = &v
	h.mu.Unlock()

	h.refresh(CharCurrentHumidity, v)
	if h.history != nil {
		h.history.RecordReading(h.name, sensor.KindHumidity, v)
	}
}

func (h *HeaterCooler) getTemperature(ctx context.Context) (any, error) {
	return h.monitor.Read(ctx), nil
}

func (h *HeaterCooler) peekTemperature() any {
	v, _ := h.monitor.Last()
	return v
}

func (h *HeaterCooler) peekHumidity() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.humidity == nil {
		return 0.0
	}
	return *h.humidity
}
