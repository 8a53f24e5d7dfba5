package broadlink

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// device is one gateway device. It implements appliance.Device.
type device struct {
	mac     string
	address string
	gw      *Gateway

	mu        sync.Mutex
	active    bool
	lastSeen  time.Time
	listeners map[uint64]func(sensor.Reading)
	nextID    uint64
}

// DeviceStatus is a point-in-time view of one device.
type DeviceStatus struct {
	MAC      string    `json:"mac"`
	Address  string    `json:"address,omitempty"`
	Active   bool      `json:"active"`
	LastSeen time.Time `json:"last_seen,omitzero"`
}

func newDevice(gw *Gateway, mac, address string) *device {
	return &device{
		mac:       mac,
		address:   address,
		gw:        gw,
		active:    gw.healthTimeout <= 0,
		listeners: make(map[uint64]func(sensor.Reading)),
	}
}

// Active reports whether the daemon considers the device usable.
func (d *device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// CheckTemperature asks the device for a temperature reading.
func (d *device) CheckTemperature(ctx context.Context) error {
	return d.gw.request(ctx, d.mac, sensor.KindTemperature)
}

// CheckHumidity asks the device for a humidity reading.
func (d *device) CheckHumidity(ctx context.Context) error {
	return d.gw.request(ctx, d.mac, sensor.KindHumidity)
}

// Subscribe registers fn for every reading the device reports.
func (d *device) Subscribe(fn func(sensor.Reading)) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// deliver fans a reading out to the listeners outside the lock.
func (d *device) deliver(r sensor.Reading) {
	d.mu.Lock()
	fns := make([]func(sensor.Reading), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// setActive records a heartbeat or a watchdog expiry. It returns true when
// the state changed.
func (d *device) setActive(active bool, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if active {
		d.lastSeen = at
	}
	changed := d.active != active
	d.active = active
	return changed
}

// expire marks the device inactive when its last heartbeat is older than
// timeout.
func (d *device) expire(now time.Time, timeout time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active || now.Sub(d.lastSeen) < timeout {
		return false
	}
	d.active = false
	return true
}

func (d *device) status() DeviceStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceStatus{
		MAC:      d.mac,
		Address:  d.address,
		Active:   d.active,
		LastSeen: d.lastSeen,
	}
}
