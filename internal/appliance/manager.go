package appliance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
)

// Manager owns the configured accessories and their lifecycle.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	log Logger

	mu      sync.RWMutex
	order   []string
	byName  map[string]Accessory
	started bool
}

// NewManager builds every accessory in specs. Every accessory is tried so
// that one start-up error lists each bad entry; no manager is returned
// unless all of them built.
//
// Parameters:
//   - specs: Accessory entries in configuration order
//   - deps: Shared collaborators
//
// Returns:
//   - *Manager: Manager holding the accessories
//   - error: ErrDuplicateName, or the joined build errors (ErrInvalidConfig,
//     ErrMissingCode, ErrUnknownType)
func NewManager(specs []Spec, deps Deps) (*Manager, error) {
	m := &Manager{
		log:    deps.Logger,
		byName: make(map[string]Accessory, len(specs)),
	}
	if m.log == nil {
		m.log = nopLogger{}
	}

	var errs []error
	for _, spec := range specs {
		if _, exists := m.byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
		}

		acc, err := New(spec, deps)
		if err != nil {
			m.log.Error("accessory not registered", "name", spec.Name, "type", spec.Type, "error", err)
			errs = append(errs, err)
			continue
		}
		m.byName[acc.Name()] = acc
		m.order = append(m.order, acc.Name())
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	m.linkAutoSwitches()
	return m, nil
}

// linkAutoSwitches gates automatic transitions with their named switch.
func (m *Manager) linkAutoSwitches() {
	for _, name := range m.order {
		auto, ok := m.byName[name].(AutoOnOffCapable)
		if !ok || auto.AutoSwitchName() == "" || auto.AutoOnOff() == nil {
			continue
		}

		target, found := m.byName[auto.AutoSwitchName()]
		if !found {
			m.log.Warn("auto switch not found", "accessory", name, "switch", auto.AutoSwitchName())
			continue
		}
		gate, ok := target.(autoonoff.Gate)
		if !ok {
			m.log.Warn("auto switch is not a switch", "accessory", name, "switch", auto.AutoSwitchName(), "type", target.Type())
			continue
		}
		auto.AutoOnOff().SetGate(gate)
		m.log.Info("auto switch linked", "accessory", name, "switch", auto.AutoSwitchName())
	}
}

// Start starts every accessory.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	var g errgroup.Group
	for _, name := range m.order {
		acc := m.byName[name]
		g.Go(func() error {
			if err := acc.Start(ctx); err != nil {
				return fmt.Errorf("starting %s: %w", acc.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, name := range m.order {
			m.byName[name].Stop()
		}
		return err
	}

	m.started = true
	m.log.Info("accessories started", "count", len(m.order))
	return nil
}

// Stop stops every accessory.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}

	var wg sync.WaitGroup
	for _, name := range m.order {
		acc := m.byName[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.Stop()
		}()
	}
	wg.Wait()
	m.started = false
}

// Get returns the accessory called name.
func (m *Manager) Get(name string) (Accessory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return acc, nil
}

// List returns the accessories in configuration order.
func (m *Manager) List() []Accessory {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Accessory, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}
