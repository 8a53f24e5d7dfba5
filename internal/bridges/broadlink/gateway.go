package broadlink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// Gateway operation constants.
const (
	// commandQoS is used for codes and sensor requests; a lost code leaves
	// the appliance out of step with its state.
	commandQoS = 1

	// minWatchdogInterval bounds how often heartbeats are checked.
	minWatchdogInterval = time.Second
)

// MQTTClient is the part of the MQTT client used by the gateway.
// This allows mocking in tests.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the logging surface used by the gateway.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Gateway.
type Options struct {
	// MQTT is the connected broker client. Required.
	MQTT MQTTClient

	// Topics roots the gateway topics.
	Topics mqtt.Topics

	// Hosts lists the devices from the accessories file. The first host
	// is the default device.
	Hosts []appliance.HostConfig

	// HealthTimeout marks a device inactive when no heartbeat arrived for
	// this long. Zero keeps every device active.
	HealthTimeout time.Duration

	Logger Logger

	// Now overrides time.Now.
	Now func() time.Time
}

// Gateway implements appliance.Transport against a Broadlink gateway
// daemon reached over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Gateway struct {
	mqtt          MQTTClient
	topics        mqtt.Topics
	healthTimeout time.Duration
	logger        Logger
	now           func() time.Time

	// Devices are fixed after construction.
	devices   map[string]*device // by MAC
	byAddress map[string]*device
	order     []*device

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	startOnce sync.Once
}

// NewGateway validates the hosts and creates a gateway.
// Call Start to begin receiving readings and heartbeats.
//
// Parameters:
//   - opts: Gateway options
//
// Returns:
//   - *Gateway: Gateway ready to start
//   - error: ErrInvalidMAC or ErrDuplicateHost for a bad host list
func NewGateway(opts Options) (*Gateway, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Topics.Prefix == "" {
		opts.Topics = mqtt.NewTopics("")
	}

	g := &Gateway{
		mqtt:          opts.MQTT,
		topics:        opts.Topics,
		healthTimeout: opts.HealthTimeout,
		logger:        opts.Logger,
		now:           opts.Now,
		devices:       make(map[string]*device, len(opts.Hosts)),
		byAddress:     make(map[string]*device, len(opts.Hosts)),
		done:          make(chan struct{}),
	}

	for i, h := range opts.Hosts {
		mac, err := NormalizeMAC(h.MAC)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		if _, dup := g.devices[mac]; dup {
			return nil, fmt.Errorf("%w: mac %s", ErrDuplicateHost, mac)
		}
		address := strings.TrimSpace(h.Address)
		if address != "" {
			if _, dup := g.byAddress[address]; dup {
				return nil, fmt.Errorf("%w: address %s", ErrDuplicateHost, address)
			}
		}

		d := newDevice(g, mac, address)
		g.devices[mac] = d
		if address != "" {
			g.byAddress[address] = d
		}
		g.order = append(g.order, d)
	}

	return g, nil
}

// Start subscribes to device readings and heartbeats and starts the
// health watchdog.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.mqtt.Subscribe(g.topics.AllGatewayStates(), commandQoS, g.handleState); err != nil {
		return fmt.Errorf("subscribe to device states: %w", err)
	}
	if err := g.mqtt.Subscribe(g.topics.AllGatewayHealth(), commandQoS, g.handleHealth); err != nil {
		return fmt.Errorf("subscribe to device health: %w", err)
	}

	if g.healthTimeout > 0 {
		g.startOnce.Do(func() {
			g.wg.Add(1)
			go g.watchdog(ctx)
		})
	}

	g.logInfo("broadlink gateway started",
		"devices", len(g.order),
		"health_timeout", g.healthTimeout)
	return nil
}

// Stop ends the watchdog and drops the subscriptions.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		g.wg.Wait()

		for _, topic := range []string{g.topics.AllGatewayStates(), g.topics.AllGatewayHealth()} {
			if err := g.mqtt.Unsubscribe(topic); err != nil {
				g.logDebug("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		g.logInfo("broadlink gateway stopped")
	})
}

// Device returns the device for host. host is matched against addresses
// first, then MACs. An empty host selects the first configured device.
func (g *Gateway) Device(host string) (appliance.Device, error) {
	d, err := g.resolve(host)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Send publishes a code to the device for host.
//
// Parameters:
//   - ctx: Cancelled contexts send nothing
//   - host: Address or MAC; empty selects the default device
//   - code: Hex-encoded code
//
// Returns:
//   - error: ErrUnknownHost, ErrInvalidCode, ErrNotConnected or the publish error
func (g *Gateway) Send(ctx context.Context, host, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := g.resolve(host)
	if err != nil {
		return err
	}
	if _, err := hex.DecodeString(code); err != nil || code == "" {
		return fmt.Errorf("%w: not hex data", ErrInvalidCode)
	}

	msg := CommandMessage{
		RequestID: uuid.NewString(),
		Data:      strings.ToLower(code),
		Timestamp: g.now().UTC(),
	}
	if err := g.publish(g.topics.GatewayCommand(d.mac), msg); err != nil {
		return err
	}
	g.logDebug("code sent", "mac", d.mac, "request_id", msg.RequestID, "bytes", len(code)/2)
	return nil
}

// Status returns every device in configuration order.
func (g *Gateway) Status() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(g.order))
	for _, d := range g.order {
		out = append(out, d.status())
	}
	return out
}

// Alive reports ErrNoActiveDevice unless at least one device is active.
// It serves as the gateway daemon liveness check.
func (g *Gateway) Alive(_ context.Context) error {
	for _, d := range g.order {
		if d.Active() {
			return nil
		}
	}
	return ErrNoActiveDevice
}

func (g *Gateway) resolve(host string) (*device, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		if len(g.order) == 0 {
			return nil, ErrNoDevices
		}
		return g.order[0], nil
	}
	if d, ok := g.byAddress[host]; ok {
		return d, nil
	}
	if mac, err := NormalizeMAC(host); err == nil {
		if d, ok := g.devices[mac]; ok {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHost, host)
}

func (g *Gateway) request(ctx context.Context, mac string, kind sensor.Kind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := RequestMessage{
		RequestID: uuid.NewString(),
		Kind:      kind,
		Timestamp: g.now().UTC(),
	}
	return g.publish(g.topics.GatewayRequest(mac), msg)
}

func (g *Gateway) publish(topic string, msg any) error {
	if !g.mqtt.IsConnected() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}
	return g.mqtt.Publish(topic, payload, commandQoS, false)
}

// handleState delivers a device reading to its listeners. A reading also
// counts as a heartbeat.
func (g *Gateway) handleState(topic string, payload []byte) error {
	d := g.deviceForTopic(topic)
	if d == nil {
		return nil
	}
	msg, err := ParseStateMessage(payload)
	if err != nil {
		g.logWarn("ignoring malformed state", "mac", d.mac, "error", err)
		return nil
	}
	if g.healthTimeout > 0 && d.setActive(true, g.now()) {
		g.logInfo("device active", "mac", d.mac)
	}
	d.deliver(msg.Reading())
	return nil
}

func (g *Gateway) handleHealth(topic string, payload []byte) error {
	d := g.deviceForTopic(topic)
	if d == nil {
		return nil
	}
	msg, err := ParseHealthMessage(payload)
	if err != nil {
		g.logWarn("ignoring malformed heartbeat", "mac", d.mac, "error", err)
		return nil
	}
	if g.healthTimeout <= 0 {
		return nil
	}
	if d.setActive(msg.Online(), g.now()) {
		if msg.Online() {
			g.logInfo("device active", "mac", d.mac)
		} else {
			g.logWarn("device reported offline", "mac", d.mac)
		}
	}
	return nil
}

func (g *Gateway) deviceForTopic(topic string) *device {
	mac, err := NormalizeMAC(mqtt.LastSegment(topic))
	if err != nil {
		g.logDebug("ignoring topic without MAC", "topic", topic)
		return nil
	}
	d, ok := g.devices[mac]
	if !ok {
		g.logDebug("ignoring unconfigured device", "mac", mac)
		return nil
	}
	return d
}

// watchdog marks devices inactive once their heartbeat is overdue.
func (g *Gateway) watchdog(ctx context.Context) {
	defer g.wg.Done()

	interval := g.healthTimeout / 3
	if interval < minWatchdogInterval {
		interval = minWatchdogInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-ticker.C:
			g.expireDevices()
		}
	}
}

func (g *Gateway) expireDevices() {
	now := g.now()
	for _, d := range g.order {
		if d.expire(now, g.healthTimeout) {
			g.logWarn("device heartbeat overdue", "mac", d.mac, "timeout", g.healthTimeout)
		}
	}
}

func (g *Gateway) logInfo(msg string, keysAndValues ...any) {
	if g.logger != nil {
		g.logger.Info(msg, keysAndValues...)
	}
}

func (g *Gateway) logWarn(msg string, keysAndValues ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, keysAndValues...)
	}
}

func (g *Gateway) logDebug(msg string, keysAndValues ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, keysAndValues...)
	}
}
