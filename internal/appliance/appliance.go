package appliance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/autoonoff"
	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
	"github.com/nerrad567/gray-logic-irbridge/internal/delay"
	"github.com/nerrad567/gray-logic-irbridge/internal/reachability"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
	"github.com/nerrad567/gray-logic-irbridge/internal/transmit"
)

// Accessory is one controllable appliance.
type Accessory interface {
	Name() string
	Type() string

	// Characteristics lists the exposed characteristic names in a stable
	// order.
	Characteristics() []string

	// Get returns the current value of a characteristic. Values that come
	// from a sensor may block until ctx ends; the last known value is used
	// then.
	Get(ctx context.Context, characteristic string) (any, error)

	// Set changes a characteristic and transmits the resulting codes.
	// Transmissions continue after ctx ends; only a newer change of the
	// same accessory cancels them.
	Set(ctx context.Context, characteristic string, value any) error

	// Snapshot returns the cached value of every characteristic without
	// querying sensors.
	Snapshot() map[string]any

	// Start launches background work (sensor polling, reachability). Stop
	// ends it and cancels pending transmissions.
	Start(ctx context.Context) error
	Stop()
}

// AutoOnOffCapable is implemented by accessories that switch themselves on
// and off from sensor readings.
type AutoOnOffCapable interface {
	Accessory
	AutoOnOff() *autoonoff.Controller

	// AutoSwitchName names the switch accessory gating automatic
	// transitions, or "".
	AutoSwitchName() string
}

// SensorDriven is implemented by accessories that own sensor monitors.
type SensorDriven interface {
	Accessory
	Monitors() []*sensor.Monitor
}

// Logger is the logging interface used by accessories.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Notifier receives every characteristic change pushed to the host.
type Notifier interface {
	Refresh(accessory, characteristic string, value any)
}

// Device is one transport device: it accepts codes and produces sensor
// readings asynchronously.
type Device interface {
	sensor.Device

	// Subscribe registers fn for every reading the device reports and
	// returns a function that removes it.
	Subscribe(fn func(sensor.Reading)) func()
}

// Transport is the hardware gateway shared by all accessories.
type Transport interface {
	transmit.Sender

	// Device returns the device for host. An empty host selects the
	// default device.
	Device(host string) (Device, error)
}

// MessageBus delivers sensor values published on topics.
type MessageBus interface {
	Subscribe(topic string, fn func(payload []byte)) (func(), error)
}

// Metrics collects accessory level measurements.
type Metrics interface {
	transmit.Observer
	sensor.Observer
	ObserveAutoAction(accessory string, action autoonoff.Action)
}

// Deps are the collaborators shared by every accessory. Only Transport is
// required.
type Deps struct {
	Transport Transport
	Logger    Logger

	// AccessoryLogger, when set, builds the logger for one accessory from
	// its legacy logLevel setting.
	AccessoryLogger func(name, level string) Logger

	Notifier Notifier
	History  sensor.Recorder
	Metrics  Metrics
	Messages MessageBus

	// Ping and ARP probe switch reachability. Nil disables the matching
	// pingUseArp mode.
	Ping reachability.Prober
	ARP  reachability.Prober

	// W1Root overrides the 1-Wire device directory.
	W1Root string

	// SensorTimeout bounds the wait for an unanswered device query. Zero
	// keeps the monitor default.
	SensorTimeout time.Duration

	// Sleep overrides pacing waits and Now the clock, for tests.
	Sleep delay.SleepFunc
	Now   func() time.Time
}

type characteristic struct {
	name string
	peek func() any
	get  func(ctx context.Context) (any, error)
	set  func(ctx context.Context, value any) error
}

// base is embedded by every accessory kind.
type base struct {
	name          string
	kind          string
	data          *codes.Entry
	preventResend bool

	log      Logger
	notifier Notifier
	metrics  Metrics
	history  sensor.Recorder
	pipeline *transmit.Pipeline
	sleep    delay.SleepFunc
	now      func() time.Time

	sensorTimeout time.Duration

	// mu guards the state of the embedding accessory.
	mu sync.Mutex

	// pacing holds waits between the codes of one transition.
	pacing delay.Slot

	chars []*characteristic
	tasks []func(ctx context.Context)

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *base) init(c Common, kind string, deps Deps) {
	b.name = c.Name
	b.kind = kind
	b.data = c.Data
	b.preventResend = c.PreventResend()

	switch {
	case deps.AccessoryLogger != nil:
		b.log = deps.AccessoryLogger(c.Name, c.LogLevel)
	case deps.Logger != nil:
		b.log = deps.Logger
	default:
		b.log = nopLogger{}
	}

	b.notifier = deps.Notifier
	if b.notifier == nil {
		b.notifier = nopNotifier{}
	}
	b.metrics = deps.Metrics
	if !c.NoHistory {
		b.history = deps.History
	}

	b.sleep = deps.Sleep
	if b.sleep == nil {
		b.sleep = delay.Sleep
	}
	b.pacing.Sleep = b.sleep
	b.now = deps.Now
	if b.now == nil {
		b.now = time.Now
	}
	b.sensorTimeout = deps.SensorTimeout

	var observer transmit.Observer
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	var sender transmit.Sender
	if deps.Transport != nil {
		sender = deps.Transport
	}
	b.pipeline = transmit.New(transmit.Options{
		Name:     c.Name,
		Host:     c.Host,
		Sender:   sender,
		Logger:   b.log,
		Observer: observer,
		Sleep:    b.sleep,
	})
}

// Name returns the accessory name.
func (b *base) Name() string { return b.name }

// Type returns the accessory type.
func (b *base) Type() string { return b.kind }

// Characteristics returns the exposed characteristic names.
func (b *base) Characteristics() []string {
	names := make([]string, len(b.chars))
	for i, c := range b.chars {
		names[i] = c.name
	}
	return names
}

// Get returns a characteristic value.
func (b *base) Get(ctx context.Context, name string) (any, error) {
	c, err := b.lookup(name)
	if err != nil {
		return nil, err
	}
	if c.get != nil {
		return c.get(ctx)
	}
	return c.peek(), nil
}

// Set changes a characteristic.
func (b *base) Set(ctx context.Context, name string, value any) error {
	c, err := b.lookup(name)
	if err != nil {
		return err
	}
	if c.set == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	b.log.Debug("set characteristic", "accessory", b.name, "characteristic", name, "value", value)
	return c.set(context.WithoutCancel(ctx), value)
}

// Snapshot returns the cached characteristic values.
func (b *base) Snapshot() map[string]any {
	out := make(map[string]any, len(b.chars))
	for _, c := range b.chars {
		out[c.name] = c.peek()
	}
	return out
}

// Start launches the background tasks registered by the accessory.
func (b *base) Start(ctx context.Context) error {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if b.cancel != nil {
		return nil
	}
	ctx, b.cancel = context.WithCancel(ctx)

	for _, task := range b.tasks {
		b.wg.Add(1)
		go func(task func(context.Context)) {
			defer b.wg.Done()
			task(ctx)
		}(task)
	}
	return nil
}

// Stop ends the background tasks and cancels pending transmissions.
func (b *base) Stop() {
	b.runMu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.resetTransmissions()
}

func (b *base) lookup(name string) (*characteristic, error) {
	for _, c := range b.chars {
		if c.name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no %s", ErrUnknownCharacteristic, b.name, name)
}

// expose registers a characteristic. set may be nil for read-only values.
func (b *base) expose(name string, peek func() any, set func(ctx context.Context, value any) error) {
	b.chars = append(b.chars, &characteristic{name: name, peek: peek, set: set})
}

// exposeSensor registers a read-only characteristic whose Get queries a
// sensor.
func (b *base) exposeSensor(name string, peek func() any, get func(ctx context.Context) (any, error)) {
	b.chars = append(b.chars, &characteristic{name: name, peek: peek, get: get})
}

func (b *base) addTask(task func(ctx context.Context)) {
	b.tasks = append(b.tasks, task)
}

func (b *base) refresh(name string, value any) {
	b.notifier.Refresh(b.name, name, value)
}

func (b *base) send(ctx context.Context, payload transmit.Payload) {
	b.pipeline.Send(ctx, payload)
}

// pause waits d unless a reset or a newer pause intervenes.
func (b *base) pause(ctx context.Context, d time.Duration) error {
	ctx, release := b.pacing.Begin(ctx)
	defer release()
	return b.sleep(ctx, d)
}

// resetTransmissions cancels the in-flight sequence and pacing wait.
func (b *base) resetTransmissions() {
	b.pipeline.Reset()
	b.pacing.Cancel()
}

func (b *base) observeAuto(action autoonoff.Action) {
	if b.metrics != nil {
		b.metrics.ObserveAutoAction(b.name, action)
	}
}

func (b *base) sensorObserver() sensor.Observer {
	if b.metrics == nil {
		return nil
	}
	return b.metrics
}

func (b *base) recorder() sensor.Recorder {
	if b.history == nil {
		return nil
	}
	return b.history
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopNotifier struct{}

func (nopNotifier) Refresh(string, string, any) {}

// toggle applies a boolean characteristic backed by an on/off code pair.
func (b *base) toggle(ctx context.Context, name string, state *bool, v bool, onCode, offCode transmit.Payload) {
	b.mu.Lock()
	if *state == v && b.preventResend {
		b.mu.Unlock()
		b.log.Debug("value unchanged, not resending", "accessory", b.name, "characteristic", name)
		return
	}
	*state = v
	b.mu.Unlock()

	b.resetTransmissions()
	b.refresh(name, v)

	code := offCode
	if v {
		code = onCode
	}
	b.send(ctx, code)
}

// replaceSetter swaps the setter of an exposed characteristic.
func (b *base) replaceSetter(name string, set func(ctx context.Context, value any) error) {
	for _, c := range b.chars {
		if c.name == name {
			c.set = set
			return
		}
	}
}
