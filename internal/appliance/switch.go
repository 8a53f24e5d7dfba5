package appliance

// Switch is a binary on/off appliance. Its state can follow the
// reachability of a host on the network, and it can switch itself back on
// or off after a delay.
type Switch struct {
	base
	power
}

// NewSwitch creates a switch.
func NewSwitch(cfg SwitchConfig, deps Deps) (*Switch, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Switch{}
	s.base.init(cfg.Common, TypeSwitch, deps)
	s.power.init(&s.base, cfg.PowerConfig, deps)

	s.expose(CharOn, s.peekOn, s.setOnValue)
	return s, nil
}

// Stop ends background work and cancels the automatic timers.
func (s *Switch) Stop() {
	s.base.Stop()
	s.stopTimers()
}
