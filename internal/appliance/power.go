package appliance

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/delay"
	"github.com/nerrad567/gray-logic-irbridge/internal/reachability"
	"github.com/nerrad567/gray-logic-irbridge/internal/transmit"
)

// power is the on/off core shared by switches, fans, air purifiers and
// humidifiers. Its state is guarded by the owning base's mutex.
type power struct {
	b   *base
	cfg PowerConfig

	onCode  transmit.Payload
	offCode transmit.Payload
	prober  reachability.Prober

	on bool

	// changing is set from a transition until the ping grace period has
	// passed. Reachability results are ignored meanwhile.
	changing bool

	autoOn  delay.Slot
	autoOff delay.Slot
	grace   delay.Slot

	// beforeSend runs after the reset and before the power code is sent.
	// afterSend runs once the code is out and the timers are armed.
	beforeSend func(ctx context.Context, on bool)
	afterSend  func(ctx context.Context, on bool)
}

func (p *power) init(b *base, cfg PowerConfig, deps Deps) {
	p.b = b
	p.cfg = cfg

	// A bare data code is the on code.
	p.onCode = b.data.Code("on")
	if p.onCode.IsZero() && !b.data.IsTable() {
		p.onCode = b.data.Payload()
	}
	p.offCode = b.data.Code("off")

	if cfg.PingIPAddress != "" {
		p.prober = deps.Ping
		if cfg.PingUseArp {
			p.prober = deps.ARP
		}
		if p.prober == nil {
			b.log.Warn("no reachability prober available, ping disabled", "accessory", b.name, "address", cfg.PingIPAddress)
		} else {
			b.addTask(p.watch)
		}
	}
}

// IsOn reports the power state.
func (p *power) IsOn() bool {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return p.on
}

func (p *power) peekOn() any {
	return p.IsOn()
}

func (p *power) setOnValue(ctx context.Context, value any) error {
	on, err := toBool(value)
	if err != nil {
		return err
	}
	return p.setOn(ctx, on)
}

// setOn switches the device on or off.
func (p *power) setOn(ctx context.Context, on bool) error {
	b := p.b

	b.mu.Lock()
	unchanged := p.on == on
	b.mu.Unlock()
	if unchanged && b.preventResend {
		b.log.Debug("power unchanged, not resending", "accessory", b.name, "on", on)
		return nil
	}

	p.reset()

	b.mu.Lock()
	p.on = on
	b.mu.Unlock()
	b.refresh(CharOn, on)

	if p.beforeSend != nil {
		p.beforeSend(ctx, on)
	}

	code := p.offCode
	if on {
		code = p.onCode
	}
	b.send(ctx, code)

	p.arm(on)

	if p.afterSend != nil {
		p.afterSend(ctx, on)
	}
	return nil
}

// reset cancels transmissions and every power timer and marks a state
// change as in progress.
func (p *power) reset() {
	p.b.resetTransmissions()
	p.autoOn.Cancel()
	p.autoOff.Cancel()
	p.grace.Cancel()

	p.b.mu.Lock()
	p.changing = true
	p.b.mu.Unlock()
}

func (p *power) arm(on bool) {
	b := p.b

	p.grace.After(delay.Seconds(p.cfg.PingGrace), func() {
		b.mu.Lock()
		p.changing = false
		b.mu.Unlock()
	})

	if on && p.cfg.AutoOff() {
		b.log.Info("automatically turning off", "accessory", b.name, "after_s", p.cfg.OnDuration)
		p.autoOff.After(delay.Seconds(p.cfg.OnDuration), func() {
			p.switchTo(context.Background(), false, "auto off")
		})
	}
	if !on && p.cfg.AutoOn() {
		b.log.Info("automatically turning on", "accessory", b.name, "after_s", p.cfg.OffDuration)
		p.autoOn.After(delay.Seconds(p.cfg.OffDuration), func() {
			p.switchTo(context.Background(), true, "auto on")
		})
	}
}

// onReachability applies a probe result. Only a result that differs from
// the current state acts, and nothing acts while a change is in progress.
func (p *power) onReachability(ctx context.Context, up bool) {
	b := p.b

	b.mu.Lock()
	if p.changing || p.on == up {
		b.mu.Unlock()
		return
	}
	if p.cfg.PingIPAddressStateOnly {
		p.on = up
		b.mu.Unlock()
		b.log.Debug("reachability changed, updating state only", "accessory", b.name, "on", up)
		b.refresh(CharOn, up)
		return
	}
	b.mu.Unlock()

	b.log.Info("reachability changed", "accessory", b.name, "on", up)
	p.switchTo(ctx, up, "reachability")
}

// switchTo runs setOn for a transition nobody requested, logging the
// failure since there is no caller to return it to.
func (p *power) switchTo(ctx context.Context, on bool, reason string) {
	if err := p.setOn(ctx, on); err != nil {
		p.b.log.Error("power change failed", "accessory", p.b.name, "on", on, "reason", reason, "error", err)
	}
}

func (p *power) watch(ctx context.Context) {
	interval := time.Duration(p.cfg.PingFrequency * float64(time.Second))
	reachability.Watch(ctx, p.prober, p.cfg.PingIPAddress, interval, func(up bool) {
		p.onReachability(ctx, up)
	})
}

func (p *power) stopTimers() {
	p.autoOn.Cancel()
	p.autoOff.Cancel()
	p.grace.Cancel()
}
