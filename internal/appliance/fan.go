package appliance

import (
	"context"
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
)

// Fan adds speed, swing and rotation direction to the power core.
//
// Speeds map onto the nearest configured fanSpeed<N> code. A speed of 0
// keeps the previous speed; power off is done through CharOn.
type Fan struct {
	base
	power

	fanCfg FanConfig

	speed     int
	lastSpeed int
	swing     bool
	direction bool
}

// NewFan creates a fan.
func NewFan(cfg FanConfig, deps Deps) (*Fan, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Fan{}
	f.init(cfg, TypeFan, deps)
	return f, nil
}

func (f *Fan) init(cfg FanConfig, kind string, deps Deps) {
	f.fanCfg = cfg
	f.speed = cfg.DefaultFanSpeed

	f.base.init(cfg.Common, kind, deps)
	f.power.init(&f.base, cfg.PowerConfig, deps)
	f.power.beforeSend = f.onPower

	f.expose(CharOn, f.peekOn, f.setOnValue)
	f.expose(CharRotationSpeed, f.peekSpeed, f.setSpeedValue)
	if !cfg.HideSwingMode {
		f.expose(CharSwingMode, f.peekSwing, f.setSwingValue)
	}
	if !cfg.HideRotationDirection {
		f.expose(CharRotationDirection, f.peekDirection, f.setDirectionValue)
	}
}

// Stop ends background work and cancels the automatic timers.
func (f *Fan) Stop() {
	f.base.Stop()
	f.stopTimers()
}

// Speed returns the requested speed.
func (f *Fan) Speed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speed
}

func (f *Fan) onPower(_ context.Context, on bool) {
	if on {
		return
	}

	f.mu.Lock()
	f.lastSpeed = 0
	reset := f.fanCfg.AlwaysResetToDefaults
	if reset {
		f.speed = f.fanCfg.DefaultFanSpeed
	}
	speed := f.speed
	f.mu.Unlock()

	if reset {
		f.refresh(CharRotationSpeed, speed)
	}
}

func (f *Fan) peekSpeed() any {
	return f.Speed()
}

func (f *Fan) setSpeedValue(ctx context.Context, value any) error {
	n, err := toInt(value)
	if err != nil {
		return err
	}
	if n < 0 || n > 100 {
		return fmt.Errorf("%w: rotation speed %d not in 0..100", ErrOutOfRange, n)
	}
	return f.setSpeed(ctx, n)
}

// setSpeed sends the code of the configured speed nearest to speed.
func (f *Fan) setSpeed(ctx context.Context, speed int) error {
	if speed == 0 {
		prev := f.Speed()
		f.log.Debug("speed 0 requested, keeping previous speed", "accessory", f.name, "speed", prev)
		f.refresh(CharRotationSpeed, prev)
		return nil
	}
	speed = snapSpeed(speed, f.fanCfg.StepSize)

	f.mu.Lock()
	unchanged := speed == f.speed
	f.mu.Unlock()
	if unchanged && f.preventResend {
		f.log.Debug("speed unchanged, not resending", "accessory", f.name, "speed", speed)
		return nil
	}

	f.power.reset()

	f.mu.Lock()
	f.speed = speed
	f.mu.Unlock()
	f.refresh(CharRotationSpeed, speed)

	f.sendSpeed(ctx, speed)

	f.arm(f.IsOn())
	return nil
}

// sendSpeed transmits the nearest speed code unless it was the last one
// sent.
func (f *Fan) sendSpeed(ctx context.Context, speed int) {
	closest, ok := codes.NearestSpeed(f.data, speed)
	if !ok {
		f.log.Warn("no fan speed codes configured", "accessory", f.name)
		return
	}

	f.mu.Lock()
	same := f.lastSpeed == closest
	f.lastSpeed = closest
	f.mu.Unlock()

	f.log.Info("setting fan speed", "accessory", f.name, "requested", speed, "closest", closest)
	if same {
		return
	}
	f.send(ctx, f.data.Code(codes.FanSpeedKey(closest)))
}

func (f *Fan) peekSwing() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.swing
}

func (f *Fan) setSwingValue(ctx context.Context, value any) error {
	on, err := toBool(value)
	if err != nil {
		return err
	}
	code := f.data.Code("swingToggle")
	f.toggle(ctx, CharSwingMode, &f.swing, on, code, code)
	return nil
}

func (f *Fan) peekDirection() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.direction {
		return CounterClockwise
	}
	return Clockwise
}

func (f *Fan) setDirectionValue(ctx context.Context, value any) error {
	dir, err := enumValue(value, "clockwise", "counterClockwise")
	if err != nil {
		return err
	}
	f.mu.Lock()
	unchanged := f.direction == (dir == CounterClockwise)
	f.mu.Unlock()
	if unchanged && f.preventResend {
		return nil
	}

	f.mu.Lock()
	f.direction = dir == CounterClockwise
	f.mu.Unlock()
	f.resetTransmissions()
	f.refresh(CharRotationDirection, dir)

	if dir == CounterClockwise {
		f.send(ctx, f.data.Code("counterClockwise"))
	} else {
		f.send(ctx, f.data.Code("clockwise"))
	}
	return nil
}

// snapSpeed rounds speed to a multiple of step within 1..100.
func snapSpeed(speed, step int) int {
	if step <= 1 {
		return speed
	}
	snapped := int(math.Round(float64(speed)/float64(step))) * step
	if snapped < step {
		snapped = step
	}
	if snapped > 100 {
		snapped = 100
	}
	return snapped
}
