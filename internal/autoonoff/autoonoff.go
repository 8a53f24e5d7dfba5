// Package autoonoff turns appliances on and off from sensor readings.
//
// A Controller compares each reading with a low and a high threshold. Below
// the low threshold it asks for heating (or humidifying), above the high
// threshold for cooling. Once a reading is back inside the band, an appliance
// that was started automatically is switched off again. After every action
// the controller stays quiet for a suppression window so a reading hovering
// around a threshold cannot flap the appliance.
package autoonoff

import (
	"sync"
	"time"
)

// DefaultSuppression is the quiet period after an automatic action.
const DefaultSuppression = 120 * time.Second

// Action is the outcome of evaluating a reading.
type Action int

const (
	// ActionNone leaves the appliance alone.
	ActionNone Action = iota
	// ActionLow means the reading is below the low threshold.
	ActionLow
	// ActionHigh means the reading is above the high threshold.
	ActionHigh
	// ActionOff switches off an appliance that was started automatically.
	ActionOff
)

func (a Action) String() string {
	switch a {
	case ActionLow:
		return "low"
	case ActionHigh:
		return "high"
	case ActionOff:
		return "off"
	default:
		return "none"
	}
}

// Gate enables or disables automatic switching at runtime, typically a
// linked switch accessory.
type Gate interface {
	IsOn() bool
}

// Config holds the thresholds. A nil threshold is not checked.
type Config struct {
	Low         *float64
	High        *float64
	Suppression time.Duration
}

// Enabled reports whether any threshold is configured.
func (c Config) Enabled() bool {
	return c.Low != nil || c.High != nil
}

// Controller decides automatic transitions for one appliance.
type Controller struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	gate    Gate
	until   time.Time
	running bool
}

// New creates a Controller. A zero Suppression means DefaultSuppression.
func New(cfg Config) *Controller {
	if cfg.Suppression <= 0 {
		cfg.Suppression = DefaultSuppression
	}
	return &Controller{cfg: cfg, now: time.Now}
}

// SetClock overrides the time source.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// SetGate links the controller to a gate. A nil gate always allows.
func (c *Controller) SetGate(g Gate) {
	c.mu.Lock()
	c.gate = g
	c.mu.Unlock()
}

// SetThresholds replaces the thresholds, for appliances whose band is user
// adjustable at runtime.
func (c *Controller) SetThresholds(low, high *float64) {
	c.mu.Lock()
	c.cfg.Low = low
	c.cfg.High = high
	c.mu.Unlock()
}

// Evaluate returns the action for reading and, for any action other than
// ActionNone, starts the suppression window.
func (c *Controller) Evaluate(reading float64) Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cfg.Enabled() {
		return ActionNone
	}
	if c.gate != nil && !c.gate.IsOn() {
		return ActionNone
	}

	now := c.now()
	if now.Before(c.until) {
		return ActionNone
	}

	var action Action
	switch {
	case c.cfg.Low != nil && reading < *c.cfg.Low:
		action = ActionLow
		c.running = true
	case c.cfg.High != nil && reading > *c.cfg.High:
		action = ActionHigh
		c.running = true
	case c.running:
		action = ActionOff
		c.running = false
	default:
		return ActionNone
	}

	c.until = now.Add(c.cfg.Suppression)
	return action
}

// Reset ends the suppression window and forgets that the appliance was
// started automatically. It is called on every user-initiated transition.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.until = time.Time{}
	c.running = false
	c.mu.Unlock()
}

// Suppressed reports whether the controller is inside its quiet period.
func (c *Controller) Suppressed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Before(c.until)
}

// RunningAutomatically reports whether the last action started the appliance.
func (c *Controller) RunningAutomatically() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
