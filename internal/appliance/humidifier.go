package appliance

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// Humidifier current states.
const (
	HumidifierInactive      = 0
	HumidifierIdle          = 1
	HumidifierHumidifying   = 2
	HumidifierDehumidifying = 3
)

// Humidifier target states.
const (
	TargetHumidifierOrDehumidifier = 0
	TargetHumidifier               = 1
	TargetDehumidifier             = 2
)

// Pseudo humidity values used when the device has no humidity sensor.
const (
	pseudoHumidity           = 35.0
	pseudoHumidityHumidifier = 5.0
)

// Humidifier is a humidifier/dehumidifier. Its current state is reconciled
// from the measured humidity against two thresholds: below the humidifier
// threshold it humidifies, above the dehumidifier threshold it
// dehumidifies, and in between it idles.
type Humidifier struct {
	Fan

	cfg     HumidifierConfig
	monitor *sensor.Monitor
	auto    *autoonoff.Controller

	current         int
	target          int
	targetHumidity  float64
	humidifyBelow   float64
	dehumidifyAbove float64
	locked          bool

	// readings counts reading evaluations still running.
	readings sync.WaitGroup
}

// NewHumidifier creates a humidifier/dehumidifier.
func NewHumidifier(cfg HumidifierConfig, deps Deps) (*Humidifier, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Humidifier{
		cfg:             cfg,
		humidifyBelow:   *cfg.HumidifierThreshold,
		dehumidifyAbove: *cfg.DehumidifierThreshold,
	}
	switch {
	case cfg.HumidifierOnly:
		h.target = TargetHumidifier
	case cfg.DeHumidifierOnly:
		h.target = TargetDehumidifier
	}

	h.Fan.init(cfg.FanConfig, TypeHumidifier, deps)
	h.power.afterSend = h.onPowerChanged

	if cfg.EnableAutoOnOff {
		h.auto = autoonoff.New(autoonoff.Config{Suppression: secondsDuration(cfg.MinimumAutoOnOffDuration)})
		h.auto.SetClock(h.now)
		h.syncThresholds()
	}

	if !cfg.NoHumidity {
		w := h.wireSensor(cfg.SensorConfig, sensor.KindHumidity, cfg.Host, deps)
		h.monitor = h.newMonitor(sensor.KindHumidity, w.source, cfg.HumidityAdjustment, nil, h.onReading)
		h.attach(h.monitor, w, deps, cfg.HumidityUpdateFrequency, func(v float64) {
			h.refresh(CharCurrentHumidity, v)
		})
	}

	// CharOn is registered by Fan; route user changes through the auto
	// controller reset.
	h.replaceSetter(CharOn, h.setOnUser)
	h.exposeSensor(CharCurrentHumidity, h.peekHumidity, h.getHumidity)
	h.expose(CharTargetHumidity, h.peekTargetHumidity, h.setTargetHumidityValue)
	h.expose(CharCurrentState, h.peekCurrent, nil)
	h.expose(CharTargetState, h.peekTarget, h.setTargetValue)
	h.expose(CharHumidifierThreshold, h.peekHumidifyBelow, h.setHumidifierThresholdValue)
	h.expose(CharDehumidifierThreshold, h.peekDehumidifyAbove, h.setDehumidifierThresholdValue)
	h.expose(CharLockPhysicalControls, h.peekLock, h.setLockValue)
	return h, nil
}

// Monitors returns the humidity monitor, if any.
func (h *Humidifier) Monitors() []*sensor.Monitor {
	if h.monitor == nil {
		return nil
	}
	return []*sensor.Monitor{h.monitor}
}

// AutoOnOff returns the automatic on/off controller, or nil when disabled.
func (h *Humidifier) AutoOnOff() *autoonoff.Controller {
	return h.auto
}

// AutoSwitchName returns "": humidifiers are not gated by a switch.
func (h *Humidifier) AutoSwitchName() string {
	return ""
}

// CurrentState returns the reconciled state.
func (h *Humidifier) CurrentState() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// desiredState derives the current state from power, humidity and target.
func (h *Humidifier) desiredState(on bool, humidity float64, target int) int {
	if !on {
		return HumidifierInactive
	}

	if h.cfg.NoHumidity {
		switch target {
		case TargetHumidifier:
			return HumidifierHumidifying
		default:
			return HumidifierDehumidifying
		}
	}

	switch {
	case humidity < h.humidifyBelow:
		if h.cfg.DeHumidifierOnly || target == TargetDehumidifier {
			return HumidifierIdle
		}
		return HumidifierHumidifying
	case humidity > h.dehumidifyAbove:
		if h.cfg.HumidifierOnly || target == TargetHumidifier {
			return HumidifierIdle
		}
		return HumidifierDehumidifying
	default:
		return HumidifierIdle
	}
}

// reconcile moves the current state to the desired one and sends its code.
// force sends even when the state is unchanged.
func (h *Humidifier) reconcile(ctx context.Context, force bool) {
	humidity := h.currentHumidity()

	h.mu.Lock()
	desired := h.desiredState(h.on, humidity, h.target)
	changed := desired != h.current
	h.current = desired
	h.mu.Unlock()

	if !changed && !force {
		return
	}

	h.log.Info("humidifier state changed", "accessory", h.name, "state", desired, "humidity", humidity)
	h.refresh(CharCurrentState, desired)
	h.setCurrentState(ctx, desired)
}

// setCurrentState transmits the code for entering state.
func (h *Humidifier) setCurrentState(ctx context.Context, state int) {
	switch state {
	case HumidifierHumidifying:
		h.send(ctx, h.data.Code("targetStateHumidifier"))
	case HumidifierDehumidifying:
		h.send(ctx, h.data.Code("targetStateDehumidifier"))
	case HumidifierIdle:
		if h.data.Has("idle") {
			h.send(ctx, h.data.Code("idle"))
		}
	case HumidifierInactive:
		// The off code was sent by the power core.
	}
}

func (h *Humidifier) onPowerChanged(ctx context.Context, on bool) {
	h.reconcile(ctx, on)
}

func (h *Humidifier) setOnUser(ctx context.Context, value any) error {
	if h.auto != nil {
		h.auto.Reset()
	}
	return h.setOnValue(ctx, value)
}

// Stop waits for reading evaluations in flight, then stops the fan core.
func (h *Humidifier) Stop() {
	h.readings.Wait()
	h.Fan.Stop()
}

// onReading runs for every delivered humidity reading. The evaluation may
// send codes, so it runs off the delivering goroutine.
func (h *Humidifier) onReading(r sensor.Reading) {
	value, ok := r.Value(sensor.KindHumidity)
	if !ok {
		return
	}

	h.readings.Add(1)
	go func() {
		defer h.readings.Done()
		h.checkAutoOnOff(context.Background(), value)
	}()
}

// checkAutoOnOff applies automatic power for humidity, then reconciles the
// current state with it.
func (h *Humidifier) checkAutoOnOff(ctx context.Context, humidity float64) {
	if h.auto != nil {
		h.applyAuto(ctx, h.auto.Evaluate(humidity))
	}
	h.reconcile(ctx, false)
}

func (h *Humidifier) applyAuto(ctx context.Context, action autoonoff.Action) {
	if action == autoonoff.ActionNone {
		return
	}
	h.observeAuto(action)
	h.log.Info("automatic transition", "accessory", h.name, "action", action.String())

	switch action {
	case autoonoff.ActionLow, autoonoff.ActionHigh:
		if !h.IsOn() {
			h.switchTo(ctx, true, "automatic")
		}
	case autoonoff.ActionOff:
		if h.IsOn() {
			h.switchTo(ctx, false, "automatic")
		}
	}
}

func (h *Humidifier) currentHumidity() float64 {
	if h.cfg.NoHumidity || h.monitor == nil {
		return h.pseudoHumidity()
	}
	v, _ := h.monitor.Last()
	return v
}

func (h *Humidifier) pseudoHumidity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.target == TargetHumidifier {
		return pseudoHumidityHumidifier
	}
	return pseudoHumidity
}

func (h *Humidifier) getHumidity(ctx context.Context) (any, error) {
	if h.cfg.NoHumidity || h.monitor == nil {
		return h.pseudoHumidity(), nil
	}
	return h.monitor.Read(ctx), nil
}

func (h *Humidifier) peekHumidity() any {
	return h.currentHumidity()
}

func (h *Humidifier) peekTargetHumidity() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.targetHumidity
}

func (h *Humidifier) setTargetHumidityValue(_ context.Context, value any) error {
	v, err := toFloat(value)
	if err != nil {
		return err
	}
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: target humidity %v not in 0..100", ErrOutOfRange, v)
	}
	h.mu.Lock()
	h.targetHumidity = v
	h.mu.Unlock()
	h.refresh(CharTargetHumidity, v)
	return nil
}

func (h *Humidifier) peekCurrent() any {
	return h.CurrentState()
}

func (h *Humidifier) peekTarget() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

func (h *Humidifier) setTargetValue(ctx context.Context, value any) error {
	target, err := enumValue(value, "auto", "humidifier", "dehumidifier")
	if err != nil {
		return err
	}
	if (h.cfg.HumidifierOnly && target != TargetHumidifier) || (h.cfg.DeHumidifierOnly && target != TargetDehumidifier) {
		return fmt.Errorf("%w: target state %d", ErrUnsupportedMode, target)
	}

	h.mu.Lock()
	if h.target == target {
		h.mu.Unlock()
		return nil
	}
	h.target = target
	h.mu.Unlock()

	h.resetTransmissions()
	h.refresh(CharTargetState, target)
	h.log.Info("changing target state", "accessory", h.name, "target", target)

	h.reconcile(ctx, true)
	return nil
}

func (h *Humidifier) peekHumidifyBelow() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.humidifyBelow
}

func (h *Humidifier) peekDehumidifyAbove() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dehumidifyAbove
}

func (h *Humidifier) setHumidifierThresholdValue(ctx context.Context, value any) error {
	return h.setThreshold(ctx, CharHumidifierThreshold, value)
}

func (h *Humidifier) setDehumidifierThresholdValue(ctx context.Context, value any) error {
	return h.setThreshold(ctx, CharDehumidifierThreshold, value)
}

func (h *Humidifier) setThreshold(ctx context.Context, name string, value any) error {
	v, err := toFloat(value)
	if err != nil {
		return err
	}
	if v < 0 || v > 100 {
		return fmt.Errorf("%w: %s %v not in 0..100", ErrOutOfRange, name, v)
	}

	h.mu.Lock()
	low, high := h.humidifyBelow, h.dehumidifyAbove
	if name == CharHumidifierThreshold {
		low = v
	} else {
		high = v
	}
	if low > high {
		h.mu.Unlock()
		return fmt.Errorf("%w: humidifier threshold %v above dehumidifier threshold %v", ErrOutOfRange, low, high)
	}
	h.humidifyBelow, h.dehumidifyAbove = low, high
	h.mu.Unlock()

	h.refresh(name, v)
	h.syncThresholds()
	h.reconcile(ctx, false)
	return nil
}

func (h *Humidifier) syncThresholds() {
	if h.auto == nil {
		return
	}
	h.mu.Lock()
	low, high := h.humidifyBelow, h.dehumidifyAbove
	h.mu.Unlock()
	h.auto.SetThresholds(&low, &high)
}

func (h *Humidifier) peekLock() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.locked
}

func (h *Humidifier) setLockValue(ctx context.Context, value any) error {
	locked, err := toBool(value)
	if err != nil {
		return err
	}
	h.toggle(ctx, CharLockPhysicalControls, &h.locked, locked, h.data.Code("lockControls"), h.data.Code("unlockControls"))
	return nil
}
