package appliance

import (
	"context"
)

// Air purifier states.
const (
	PurifierInactive = 0
	PurifierIdle     = 1
	PurifierActive   = 2

	PurifierTargetManual = 0
	PurifierTargetAuto   = 1
)

// AirPurifier is a fan with a manual/auto target state and a physical
// controls lock. Its current state follows the power state.
type AirPurifier struct {
	Fan

	current int
	target  int
	locked  bool
}

// NewAirPurifier creates an air purifier.
func NewAirPurifier(cfg AirPurifierConfig, deps Deps) (*AirPurifier, error) {
	cfg.applyDefaults()
	cfg.HideRotationDirection = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &AirPurifier{}
	a.Fan.init(cfg.FanConfig, TypeAirPurifier, deps)
	a.power.afterSend = a.updateCurrentState

	a.expose(CharCurrentState, a.peekCurrent, nil)
	a.expose(CharTargetState, a.peekTarget, a.setTargetValue)
	if cfg.ShowLockPhysicalControls == nil || *cfg.ShowLockPhysicalControls {
		a.expose(CharLockPhysicalControls, a.peekLock, a.setLockValue)
	}
	return a, nil
}

func (a *AirPurifier) updateCurrentState(_ context.Context, on bool) {
	state := PurifierInactive
	if on {
		state = PurifierActive
	}

	a.mu.Lock()
	a.current = state
	a.mu.Unlock()

	a.log.Info("purifier state changed", "accessory", a.name, "purifying", on)
	a.refresh(CharCurrentState, state)
}

func (a *AirPurifier) peekCurrent() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AirPurifier) peekTarget() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

func (a *AirPurifier) setTargetValue(ctx context.Context, value any) error {
	target, err := enumValue(value, "manual", "auto")
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.target == target {
		a.mu.Unlock()
		return nil
	}
	a.target = target
	a.mu.Unlock()

	a.resetTransmissions()
	a.refresh(CharTargetState, target)
	a.log.Info("changing target state", "accessory", a.name, "auto", target == PurifierTargetAuto)

	if target == PurifierTargetAuto {
		a.send(ctx, a.data.Code("targetStateAuto"))
	} else {
		a.send(ctx, a.data.Code("targetStateManual"))
	}
	return nil
}

func (a *AirPurifier) peekLock() any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

func (a *AirPurifier) setLockValue(ctx context.Context, value any) error {
	locked, err := toBool(value)
	if err != nil {
		return err
	}
	a.toggle(ctx, CharLockPhysicalControls, &a.locked, locked, a.data.Code("lockControls"), a.data.Code("unlockControls"))
	return nil
}
