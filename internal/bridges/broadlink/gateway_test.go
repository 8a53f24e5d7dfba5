package broadlink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu           sync.Mutex
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	connected    bool
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

func (m *MockMQTTClient) Published() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// Deliver simulates a broker message on a concrete topic matched by a
// subscribed wildcard pattern.
func (m *MockMQTTClient) Deliver(t *testing.T, pattern, topic, payload string) {
	t.Helper()
	m.mu.Lock()
	h := m.handlers[pattern]
	m.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed for %s", pattern)
	}
	if err := h(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%s) error = %v", topic, err)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var testHosts = []appliance.HostConfig{
	{Address: "192.168.1.50", MAC: "34EA34E7D728"},
	{Address: "192.168.1.51", MAC: "34:ea:34:aa:bb:cc"},
}

func newTestGateway(t *testing.T, healthTimeout time.Duration) (*Gateway, *MockMQTTClient, *fakeClock) {
	t.Helper()
	client := NewMockMQTTClient()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g, err := NewGateway(Options{
		MQTT:          client,
		Topics:        mqtt.NewTopics("irbridge"),
		Hosts:         testHosts,
		HealthTimeout: healthTimeout,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(g.Stop)
	return g, client, clock
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"34EA34E7D728", "34:ea:34:e7:d7:28", false},
		{"34:EA:34:E7:D7:28", "34:ea:34:e7:d7:28", false},
		{"34-ea-34-e7-d7-28", "34:ea:34:e7:d7:28", false},
		{" 34ea34e7d728 ", "34:ea:34:e7:d7:28", false},
		{"34ea34e7d7", "", true},
		{"zz:ea:34:e7:d7:28", "", true},
		{"192.168.1.50", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeMAC(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidMAC) {
				t.Errorf("NormalizeMAC(%q) error = %v, want ErrInvalidMAC", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeMAC(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestNewGateway_RejectsBadHosts(t *testing.T) {
	tests := []struct {
		name  string
		hosts []appliance.HostConfig
		want  error
	}{
		{"invalid mac", []appliance.HostConfig{{MAC: "nope"}}, ErrInvalidMAC},
		{"duplicate mac", []appliance.HostConfig{{MAC: "34ea34e7d728"}, {MAC: "34:EA:34:E7:D7:28"}}, ErrDuplicateHost},
		{"duplicate address", []appliance.HostConfig{
			{Address: "10.0.0.2", MAC: "34ea34e7d728"},
			{Address: "10.0.0.2", MAC: "34ea34e7d729"},
		}, ErrDuplicateHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateway(Options{MQTT: NewMockMQTTClient(), Hosts: tt.hosts})
			if !errors.Is(err, tt.want) {
				t.Errorf("NewGateway() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGateway_DeviceResolution(t *testing.T) {
	g, _, _ := newTestGateway(t, 0)

	tests := []struct {
		host    string
		wantMAC string
		wantErr error
	}{
		{"", "34:ea:34:e7:d7:28", nil},
		{"192.168.1.51", "34:ea:34:aa:bb:cc", nil},
		{"34EA34AABBCC", "34:ea:34:aa:bb:cc", nil},
		{"192.168.1.99", "", ErrUnknownHost},
	}
	for _, tt := range tests {
		d, err := g.resolve(tt.host)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("resolve(%q) error = %v, want %v", tt.host, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("resolve(%q) error = %v", tt.host, err)
		}
		if d.mac != tt.wantMAC {
			t.Errorf("resolve(%q) mac = %s, want %s", tt.host, d.mac, tt.wantMAC)
		}
	}

	empty, err := NewGateway(Options{MQTT: NewMockMQTTClient()})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if _, err := empty.Device(""); !errors.Is(err, ErrNoDevices) {
		t.Errorf("Device(\"\") error = %v, want ErrNoDevices", err)
	}
}

func TestGateway_Send(t *testing.T) {
	g, client, _ := newTestGateway(t, 0)

	if err := g.Send(context.Background(), "192.168.1.50", "2600AB"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	pubs := client.Published()
	if len(pubs) != 1 {
		t.Fatalf("published = %d, want 1", len(pubs))
	}
	if pubs[0].Topic != "irbridge/command/broadlink/34:ea:34:e7:d7:28" {
		t.Errorf("topic = %s", pubs[0].Topic)
	}
	if pubs[0].QoS != 1 || pubs[0].Retained {
		t.Errorf("qos/retained = %d/%v, want 1/false", pubs[0].QoS, pubs[0].Retained)
	}

	var msg CommandMessage
	if err := json.Unmarshal(pubs[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal command: %v", err)
	}
	if msg.Data != "2600ab" {
		t.Errorf("Data = %q, want 2600ab", msg.Data)
	}
	if msg.RequestID == "" {
		t.Error("RequestID is empty")
	}
}

func TestGateway_SendErrors(t *testing.T) {
	g, client, _ := newTestGateway(t, 0)
	ctx := context.Background()

	if err := g.Send(ctx, "", "not-hex"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Send(not-hex) error = %v, want ErrInvalidCode", err)
	}
	if err := g.Send(ctx, "", ""); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("Send(empty) error = %v, want ErrInvalidCode", err)
	}
	if err := g.Send(ctx, "10.9.9.9", "00"); !errors.Is(err, ErrUnknownHost) {
		t.Errorf("Send(unknown) error = %v, want ErrUnknownHost", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := g.Send(cancelled, "", "00"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send(cancelled) error = %v, want context.Canceled", err)
	}

	client.SetConnected(false)
	if err := g.Send(ctx, "", "00"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send(offline) error = %v, want ErrNotConnected", err)
	}
	if n := len(client.Published()); n != 0 {
		t.Errorf("published = %d, want 0", n)
	}
}

func TestGateway_SensorRequestAndReading(t *testing.T) {
	g, client, _ := newTestGateway(t, 0)

	dev, err := g.Device("")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if !dev.Active() {
		t.Fatal("device inactive with health watchdog disabled")
	}

	var got []sensor.Reading
	cancel := dev.Subscribe(func(r sensor.Reading) { got = append(got, r) })

	if err := dev.CheckHumidity(context.Background()); err != nil {
		t.Fatalf("CheckHumidity() error = %v", err)
	}
	pubs := client.Published()
	if len(pubs) != 1 || pubs[0].Topic != "irbridge/request/broadlink/34:ea:34:e7:d7:28" {
		t.Fatalf("published = %+v, want one request", pubs)
	}
	var req RequestMessage
	if err := json.Unmarshal(pubs[0].Payload, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if req.Kind != sensor.KindHumidity {
		t.Errorf("Kind = %q, want humidity", req.Kind)
	}

	states := "irbridge/state/broadlink/+"
	client.Deliver(t, states, "irbridge/state/broadlink/34:ea:34:e7:d7:28", `{"humidity": 52.5}`)
	client.Deliver(t, states, "irbridge/state/broadlink/34:ea:34:aa:bb:cc", `{"humidity": 10}`)
	client.Deliver(t, states, "irbridge/state/broadlink/34:ea:34:e7:d7:28", `garbage`)

	if len(got) != 1 {
		t.Fatalf("readings = %d, want 1", len(got))
	}
	if got[0].Humidity == nil || *got[0].Humidity != 52.5 || got[0].Temperature != nil {
		t.Errorf("reading = %+v, want humidity 52.5 only", got[0])
	}

	cancel()
	cancel()
	client.Deliver(t, states, "irbridge/state/broadlink/34:ea:34:e7:d7:28", `{"humidity": 60}`)
	if len(got) != 1 {
		t.Errorf("readings after cancel = %d, want 1", len(got))
	}
}

func TestGateway_HealthTracking(t *testing.T) {
	g, client, clock := newTestGateway(t, 30*time.Second)
	health := "irbridge/health/broadlink/+"
	topic := "irbridge/health/broadlink/34:ea:34:e7:d7:28"

	dev, err := g.Device("192.168.1.50")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if dev.Active() {
		t.Fatal("device active before first heartbeat")
	}
	if err := g.Alive(context.Background()); !errors.Is(err, ErrNoActiveDevice) {
		t.Errorf("Alive() error = %v, want ErrNoActiveDevice", err)
	}

	client.Deliver(t, health, topic, `{"status":"online"}`)
	if !dev.Active() {
		t.Fatal("device inactive after online heartbeat")
	}
	if err := g.Alive(context.Background()); err != nil {
		t.Errorf("Alive() error = %v, want nil", err)
	}

	clock.Advance(20 * time.Second)
	g.expireDevices()
	if !dev.Active() {
		t.Error("device expired before timeout")
	}

	clock.Advance(15 * time.Second)
	g.expireDevices()
	if dev.Active() {
		t.Error("device still active after heartbeat overdue")
	}

	client.Deliver(t, health, topic, "online")
	if !dev.Active() {
		t.Error("device inactive after bare online heartbeat")
	}
	client.Deliver(t, health, topic, "offline")
	if dev.Active() {
		t.Error("device active after offline heartbeat")
	}

	// A reading counts as a heartbeat.
	client.Deliver(t, "irbridge/state/broadlink/+", "irbridge/state/broadlink/34:ea:34:e7:d7:28", `{"temperature": 21}`)
	if !dev.Active() {
		t.Error("device inactive after reading")
	}

	status := g.Status()
	if len(status) != 2 || !status[0].Active || status[1].Active {
		t.Errorf("Status() = %+v, want first active, second inactive", status)
	}
}

func TestGateway_StopUnsubscribes(t *testing.T) {
	client := NewMockMQTTClient()
	g, err := NewGateway(Options{MQTT: client, Hosts: testHosts, HealthTimeout: time.Minute})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	g.Stop()
	g.Stop()

	if len(client.unsubscribed) != 2 {
		t.Errorf("unsubscribed = %v, want both gateway patterns", client.unsubscribed)
	}
}

func TestParseHealthMessage(t *testing.T) {
	tests := []struct {
		payload string
		online  bool
		wantErr bool
	}{
		{`{"status":"online","timestamp":"2026-03-01T12:00:00Z"}`, true, false},
		{`{"status":"offline"}`, false, false},
		{"online", true, false},
		{`{"status":"sleeping"}`, false, true},
		{`{`, false, true},
	}
	for _, tt := range tests {
		msg, err := ParseHealthMessage([]byte(tt.payload))
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHealthMessage(%s) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			continue
		}
		if err == nil && msg.Online() != tt.online {
			t.Errorf("ParseHealthMessage(%s).Online() = %v, want %v", tt.payload, msg.Online(), tt.online)
		}
	}
}

// Compile-time check that Gateway satisfies the accessory transport.
var _ appliance.Transport = (*Gateway)(nil)
