package appliance

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// Thermostat modes, used for both the target and the current state.
const (
	ModeOff  = 0
	ModeHeat = 1
	ModeCool = 2
	ModeAuto = 3
)

var modeKeys = []string{codes.ModeOff, codes.ModeHeat, codes.ModeCool, codes.ModeAuto}

const (
	turnOnPause   = 300 * time.Millisecond
	modeCodePause = 250 * time.Millisecond
)

// AirCon is a thermostat style air conditioner with OFF, HEAT, COOL and
// AUTO modes. Temperatures are sent as one code per mode and temperature.
type AirCon struct {
	base

	cfg     AirConConfig
	monitor *sensor.Monitor
	auto    *autoonoff.Controller

	target        int
	current       int
	targetTemp    float64
	humidity      *float64
	battery       *float64
	firstUpdate   bool
	previouslyOff bool
}

// NewAirCon creates an air conditioner.
func NewAirCon(cfg AirConConfig, deps Deps) (*AirCon, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &AirCon{
		cfg:         cfg,
		targetTemp:  cfg.DefaultCoolTemperature,
		firstUpdate: true,
	}
	a.base.init(cfg.Common, TypeAirConditioner, deps)

	if cfg.AutoHeatTemperature != nil || cfg.AutoCoolTemperature != nil {
		a.auto = autoonoff.New(autoonoff.Config{
			Low:         cfg.AutoHeatTemperature,
			High:        cfg.AutoCoolTemperature,
			Suppression: secondsDuration(cfg.MinimumAutoOnOffDuration),
		})
		a.auto.SetClock(a.now)
	}

	w := a.wireSensor(cfg.SensorConfig, sensor.KindTemperature, cfg.Host, deps)
	a.monitor = a.newMonitor(sensor.KindTemperature, w.source, cfg.TemperatureAdjustment, cfg.PseudoDeviceTemperature, a.onReading)
	a.attach(a.monitor, w, deps, cfg.TemperatureUpdateFrequency, a.onRefresh)

	a.expose(CharTargetState, a.peekTarget, a.setTargetModeValue)
	a.expose(CharCurrentState, a.peekCurrent, nil)
	a.expose(CharTargetTemperature, a.peekTargetTemperature, a.setTargetTemperatureValue)
	a.exposeSensor(CharCurrentTemperature, a.peekTemperature, a.getTemperature)
	if !cfg.NoHumidity {
		a.expose(CharCurrentHumidity, a.peekHumidity, nil)
	}
	a.expose(CharTemperatureDisplayUnits, func() any { return displayUnits(cfg.Units) }, nil)
	a.expose(CharBatteryLevel, a.peekBattery, nil)
	return a, nil
}

// Monitors returns the temperature monitor.
func (a *AirCon) Monitors() []*sensor.Monitor {
	return []*sensor.Monitor{a.monitor}
}

// AutoOnOff returns the automatic on/off controller, or nil when no auto
// temperature is configured.
func (a *AirCon) AutoOnOff() *autoonoff.Controller {
	return a.auto
}

// AutoSwitchName names the switch gating automatic transitions.
func (a *AirCon) AutoSwitchName() string {
	return a.cfg.AutoSwitchName
}

// Mode returns the target and current modes.
func (a *AirCon) Mode() (target, current int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target, a.current
}

// TargetTemperature returns the target temperature.
func (a *AirCon) TargetTemperature() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.targetTemp
}

// reset cancels pending work for a user initiated change.
func (a *AirCon) reset() {
	a.resetTransmissions()
	if a.auto != nil {
		a.auto.Reset()
	}
}

func (a *AirCon) setTargetModeValue(ctx context.Context, value any) error {
	mode, err := enumValue(value, modeKeys...)
	if err != nil {
		return err
	}
	if (a.cfg.HeatOnly && mode != ModeOff && mode != ModeHeat) || (a.cfg.CoolOnly && mode != ModeOff && mode != ModeCool) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMode, modeKeys[mode])
	}
	a.reset()
	return a.setTargetMode(ctx, mode)
}

// setTargetMode switches mode. Automatic transitions call it directly so
// the auto on/off controller keeps its suppression window.
func (a *AirCon) setTargetMode(ctx context.Context, mode int) error {
	if mode == ModeAuto && a.cfg.ReplaceAutoMode != "" {
		replaced := modeIndex(a.cfg.ReplaceAutoMode)
		a.log.Info("replacing auto mode", "accessory", a.name, "mode", a.cfg.ReplaceAutoMode)
		mode = replaced
	}

	a.mu.Lock()
	prevTarget, current := a.target, a.current
	if mode == current && a.preventResend {
		a.target = mode
		a.mu.Unlock()
		a.log.Debug("mode unchanged, not resending", "accessory", a.name, "mode", modeKeys[mode])
		return nil
	}
	a.target = mode
	a.mu.Unlock()

	a.resetTransmissions()
	a.refresh(CharTargetState, mode)

	if mode == ModeOff {
		a.setCurrent(ModeOff)
		if current == ModeCool && a.data.Has("offDryMode") {
			a.log.Info("switching off with dry mode", "accessory", a.name)
			a.send(ctx, a.data.Code("offDryMode"))
		} else {
			a.send(ctx, a.data.Code("off"))
		}
		return nil
	}

	if prevTarget == ModeOff {
		a.mu.Lock()
		a.previouslyOff = true
		a.mu.Unlock()
	}

	if *a.cfg.TurnOnWhenOff && current == ModeOff {
		a.log.Info("turning on before changing mode", "accessory", a.name)
		a.send(ctx, a.data.Code("on"))
		if err := a.pause(ctx, turnOnPause); err != nil {
			return nil
		}
	}

	if current == mode {
		return nil
	}

	temp := a.TargetTemperature()
	switch mode {
	case ModeHeat:
		temp = a.cfg.DefaultHeatTemperature
	case ModeCool:
		temp = a.cfg.DefaultCoolTemperature
	}

	a.setCurrent(mode)
	if code := a.data.Code(modeKeys[mode]); !code.IsZero() {
		a.send(ctx, code)
	}
	a.log.Info("sent mode", "accessory", a.name, "mode", modeKeys[mode])

	if err := a.pause(ctx, modeCodePause); err != nil {
		return nil
	}

	measured, _ := a.monitor.Last()
	err := a.sendTemperature(ctx, temp, measured)
	a.refresh(CharTargetTemperature, a.TargetTemperature())
	return err
}

func (a *AirCon) setCurrent(mode int) {
	a.mu.Lock()
	a.current = mode
	a.mu.Unlock()
	a.refresh(CharCurrentState, mode)
}

func (a *AirCon) setTargetTemperatureValue(ctx context.Context, value any) error {
	temp, err := toFloat(value)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.targetTemp
	skip := temp == prev && a.preventResend && !a.previouslyOff
	if !skip {
		a.previouslyOff = false
	}
	a.mu.Unlock()
	if skip {
		a.log.Debug("temperature unchanged, not resending", "accessory", a.name, "temperature", temp)
		return nil
	}

	minT, maxT := *a.cfg.MinTemperature, *a.cfg.MaxTemperature
	if temp < minT || temp > maxT {
		a.log.Warn("target temperature out of range", "accessory", a.name, "temperature", temp, "min", minT, "max", maxT)
		return fmt.Errorf("%w: %v not in %v..%v", ErrOutOfRange, temp, minT, maxT)
	}

	a.reset()

	a.mu.Lock()
	a.targetTemp = temp
	a.mu.Unlock()

	err = a.sendTemperature(ctx, temp, prev)
	a.refresh(CharTargetTemperature, a.TargetTemperature())
	return err
}

// sendTemperature transmits the code for temp in the current target mode.
// It sends when the resolved temperature differs from prev, and on the
// first update when resending is allowed.
func (a *AirCon) sendTemperature(ctx context.Context, temp, prev float64) error {
	a.mu.Lock()
	target := a.target
	a.mu.Unlock()

	if (target == ModeOff && a.cfg.IgnoreTemperatureWhenOff) || temp == 0 {
		a.log.Info("ignoring temperature", "accessory", a.name, "temperature", temp)
		return nil
	}

	mode := modeKeys[target]
	entry, final, err := codes.TemperatureCode(a.data, mode, temp, a.cfg.Defaults())
	if err != nil {
		a.log.Error("no code for temperature", "accessory", a.name, "mode", mode, "temperature", temp, "error", err)
		return fmt.Errorf("%w: %w", ErrMissingCode, err)
	}

	a.mu.Lock()
	a.targetTemp = final
	first := a.firstUpdate
	a.mu.Unlock()

	pseudo, err := codes.PseudoMode(entry)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if pseudo != "" {
		a.setCurrent(modeIndex(pseudo))
	}

	if prev != final || (first && !a.preventResend) {
		a.send(ctx, entry.Payload())
		a.mu.Lock()
		a.firstUpdate = false
		a.mu.Unlock()
		a.log.Info("sent temperature", "accessory", a.name, "mode", mode, "temperature", final)
	}
	return nil
}

// onReading runs for every delivered temperature reading.
func (a *AirCon) onReading(r sensor.Reading) {
	a.mu.Lock()
	if r.Humidity != nil && !a.cfg.NoHumidity {
		h := *r.Humidity + a.cfg.HumidityAdjustment
		a.humidity = &h
	}
	if r.Battery != nil {
		b := *r.Battery
		a.battery = &b
	}
	humidity := a.humidity
	a.mu.Unlock()

	if humidity != nil && a.history != nil {
		a.history.RecordReading(a.name, sensor.KindHumidity, *humidity)
	}

	if temp, ok := r.Value(sensor.KindTemperature); ok {
		go a.checkAutoOnOff(context.Background(), temp)
	}
}

func (a *AirCon) onRefresh(temp float64) {
	a.refresh(CharCurrentTemperature, temp)
	if !a.cfg.NoHumidity {
		a.refresh(CharCurrentHumidity, a.peekHumidity())
	}
}

func (a *AirCon) checkAutoOnOff(ctx context.Context, temp float64) {
	if a.auto == nil {
		return
	}

	action := a.auto.Evaluate(temp)
	if action == autoonoff.ActionNone {
		return
	}
	a.observeAuto(action)
	a.log.Info("automatic transition", "accessory", a.name, "action", action.String(), "temperature", temp)

	var err error
	switch action {
	case autoonoff.ActionLow:
		err = a.setTargetMode(ctx, ModeHeat)
	case autoonoff.ActionHigh:
		err = a.setTargetMode(ctx, ModeCool)
	case autoonoff.ActionOff:
		err = a.setTargetMode(ctx, ModeOff)
	}
	if err != nil {
		a.log.Warn("automatic transition failed", "accessory", a.name, "error", err)
	}
}

func (a *AirCon) getTemperature(ctx context.Context) (any, error) {
	return a.monitor.Read(ctx), nil
}

func (a *AirCon) peekTemperature() any {
	v, _ := a.monitor.Last()
	return v
}

func (a *AirCon) peekTarget() any {
	target, _ := a.Mode()
	return target
}

func (a *AirCon) peekCurrent() any {
	_, current := a.Mode()
	return current
}

func (a *AirCon) peekTargetTemperature() any {
	return a.TargetTemperature()
}

func (a *AirCon) peekHumidity() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.humidity == nil {
		return 0.0
	}
	return *a.humidity
}

func (a *AirCon) peekBattery() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.battery == nil {
		return 100.0
	}
	return *a.battery
}

func modeIndex(key string) int {
	for i, k := range modeKeys {
		if k == key {
			return i
		}
	}
	return ModeOff
}
