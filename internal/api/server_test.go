package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/audit"
	"github.com/nerrad567/gray-logic-irbridge/internal/bridges/broadlink"
	"github.com/nerrad567/gray-logic-irbridge/internal/history"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-irbridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeAccessory is a thermostat-like accessory with one writable
// characteristic and one read-only sensor value.
type fakeAccessory struct {
	name string

	mu     sync.Mutex
	target float64
}

func (a *fakeAccessory) Name() string { return a.name }
func (a *fakeAccessory) Type() string { return "air-conditioner" }
func (a *fakeAccessory) Characteristics() []string {
	return []string{appliance.CharTargetTemperature, appliance.CharCurrentTemperature}
}
func (a *fakeAccessory) Start(context.Context) error { return nil }
func (a *fakeAccessory) Stop()                       {}

func (a *fakeAccessory) Snapshot() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		appliance.CharTargetTemperature:  a.target,
		appliance.CharCurrentTemperature: 21.5,
	}
}

func (a *fakeAccessory) Get(_ context.Context, characteristic string) (any, error) {
	snap := a.Snapshot()
	v, ok := snap[characteristic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appliance.ErrUnknownCharacteristic, characteristic)
	}
	return v, nil
}

func (a *fakeAccessory) Set(_ context.Context, characteristic string, value any) error {
	switch characteristic {
	case appliance.CharCurrentTemperature:
		return fmt.Errorf("%w: %s", appliance.ErrReadOnly, characteristic)
	case appliance.CharTargetTemperature:
	default:
		return fmt.Errorf("%w: %s", appliance.ErrUnknownCharacteristic, characteristic)
	}

	n, ok := value.(json.Number)
	if !ok {
		return fmt.Errorf("%w: %v", appliance.ErrInvalidValue, value)
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("%w: %v", appliance.ErrInvalidValue, err)
	}
	if f < 16 || f > 30 {
		return fmt.Errorf("%w: %v", appliance.ErrOutOfRange, f)
	}
	a.mu.Lock()
	a.target = f
	a.mu.Unlock()
	return nil
}

type fakeRegistry struct {
	accessories []appliance.Accessory
}

func (r *fakeRegistry) Get(name string) (appliance.Accessory, error) {
	for _, a := range r.accessories {
		if a.Name() == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", appliance.ErrNotFound, name)
}

func (r *fakeRegistry) List() []appliance.Accessory { return r.accessories }

type fakeHistory struct {
	readings []history.Reading
}

func (h *fakeHistory) Readings(_ context.Context, accessory string, kind sensor.Kind, limit int) ([]history.Reading, error) {
	var out []history.Reading
	for _, r := range h.readings {
		if r.Accessory == accessory && r.Kind == kind {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) Changes(context.Context, string, int) ([]history.Change, error) {
	return []history.Change{{Accessory: "Bedroom AC", Characteristic: "targetTemperature", Value: json.RawMessage("24")}}, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudit) Record(_ context.Context, accessory, characteristic string, value any, source, subject string, result error) (*audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := audit.Entry{Accessory: accessory, Characteristic: characteristic, Source: source, Subject: subject}
	if raw, err := json.Marshal(value); err == nil {
		e.Value = raw
	}
	if result != nil {
		e.Error = result.Error()
	}
	f.entries = append([]audit.Entry{e}, f.entries...)
	return &e, nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []audit.Entry{}
	for _, e := range f.entries {
		if filter.Source != "" && e.Source != filter.Source {
			continue
		}
		out = append(out, e)
	}
	return &audit.Page{Entries: out, Total: len(out), Limit: filter.Limit, Offset: filter.Offset}, nil
}

type fakeDevices struct{}

func (fakeDevices) Status() []broadlink.DeviceStatus {
	return []broadlink.DeviceStatus{{MAC: "34:ea:34:e7:d7:28", Address: "192.168.1.50", Active: true}}
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// testServer creates a Server with one accessory. secret enables auth.
func testServer(t *testing.T, secret string) (*Server, *fakeAccessory) {
	t.Helper()

	acc := &fakeAccessory{name: "Bedroom AC", target: 24}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: secret, Issuer: "irbridge"},
		},
		Logger:      log,
		Accessories: &fakeRegistry{accessories: []appliance.Accessory{acc}},
		History: &fakeHistory{readings: []history.Reading{
			{Accessory: "Bedroom AC", Kind: sensor.KindTemperature, Value: 21.5},
			{Accessory: "Bedroom AC", Kind: sensor.KindTemperature, Value: 21},
			{Accessory: "Bedroom AC", Kind: sensor.KindHumidity, Value: 40},
		}},
		Audit:   &fakeAudit{},
		Devices: fakeDevices{},
		Checks: map[string]HealthChecker{
			"mqtt":  checkFunc(func(context.Context) error { return nil }),
			"redis": checkFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "irbridge_transmissions_total 1\n")
		}),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, acc
}

func signToken(t *testing.T, secret, issuer string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "homeassistant",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestNew_RequiresDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	if _, err := New(Deps{Accessories: &fakeRegistry{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without accessories should fail")
	}
}

func TestServer_Lifecycle(t *testing.T) {
	srv, _ := testServer(t, "")
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := http.Get("http://" + srv.Addr() + "/api/v1/health"); err == nil {
		t.Error("server still answering after Close()")
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	components, _ := body["components"].(map[string]any)
	if components["mqtt"] != "ok" || components["redis"] != "connection refused" {
		t.Errorf("components = %v", components)
	}
	if body["accessories"] != float64(1) {
		t.Errorf("accessories = %v, want 1", body["accessories"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestAccessoryRoutes(t *testing.T) {
	srv, acc := testServer(t, "")
	h := srv.Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"list", http.MethodGet, "/api/v1/accessories", "", http.StatusOK},
		{"list filtered out", http.MethodGet, "/api/v1/accessories?type=fan", "", http.StatusOK},
		{"get", http.MethodGet, "/api/v1/accessories/Bedroom%20AC", "", http.StatusOK},
		{"get unknown", http.MethodGet, "/api/v1/accessories/Garage", "", http.StatusNotFound},
		{"get characteristic", http.MethodGet, "/api/v1/accessories/Bedroom%20AC/characteristics/currentTemperature", "", http.StatusOK},
		{"get unknown characteristic", http.MethodGet, "/api/v1/accessories/Bedroom%20AC/characteristics/swingMode", "", http.StatusNotFound},
		{"set", http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{"value": 22}`, http.StatusOK},
		{"set out of range", http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{"value": 40}`, http.StatusUnprocessableEntity},
		{"set read-only", http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/currentTemperature", `{"value": 20}`, http.StatusMethodNotAllowed},
		{"set missing value", http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{}`, http.StatusBadRequest},
		{"set bad json", http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{`, http.StatusBadRequest},
		{"devices", http.MethodGet, "/api/v1/devices", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if acc.target != 22 {
		t.Errorf("target = %v, want 22", acc.target)
	}
}

func TestListAccessories_Body(t *testing.T) {
	srv, _ := testServer(t, "")
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/accessories", "", nil)

	var body struct {
		Accessories []accessoryResponse `json:"accessories"`
		Count       int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.Accessories[0].Name != "Bedroom AC" {
		t.Fatalf("body = %+v", body)
	}
	if body.Accessories[0].State[appliance.CharTargetTemperature] != float64(24) {
		t.Errorf("state = %v", body.Accessories[0].State)
	}
}

func TestHistoryRoutes(t *testing.T) {
	srv, _ := testServer(t, "")
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/accessories/Bedroom%20AC/history/readings?limit=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readings status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["count"] != float64(1) || body["kind"] != "temperature" {
		t.Errorf("readings body = %v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accessories/Bedroom%20AC/history/readings?kind=humidity", "", nil)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("humidity body = %v", body)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accessories/Bedroom%20AC/history/readings?kind=pressure", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/v1/accessories/Bedroom%20AC/history/changes", "", nil)
	if body := decodeBody(t, rec); body["count"] != float64(1) {
		t.Errorf("changes body = %v", body)
	}

	srv.history = nil
	rec = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/accessories/Bedroom%20AC/history/changes", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled history status = %d, want 503", rec.Code)
	}
}

func TestAuditRoutes(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	h := srv.Handler()
	log := srv.audit.(*fakeAudit)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+signToken(t, testSecret, "irbridge", time.Now().Add(time.Hour)))

	doRequest(t, h, http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{"value": 23}`, header)
	doRequest(t, h, http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{"value": 99}`, header)
	// Malformed bodies never reach the accessory or the audit log.
	doRequest(t, h, http.MethodPut, "/api/v1/accessories/Bedroom%20AC/characteristics/targetTemperature", `{`, header)

	if len(log.entries) != 2 {
		t.Fatalf("audit entries = %+v, want 2", log.entries)
	}
	rejected, accepted := log.entries[0], log.entries[1]
	if accepted.Subject != "homeassistant" || accepted.Source != audit.SourceAPI || string(accepted.Value) != "23" || accepted.Error != "" {
		t.Errorf("accepted entry = %+v", accepted)
	}
	if rejected.Error == "" {
		t.Errorf("rejected entry = %+v, want an error", rejected)
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/audit?source=api&limit=10", "", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status = %d", rec.Code)
	}
	var page audit.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || page.Limit != 10 {
		t.Errorf("page = %+v", page)
	}

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/audit?source=websocket", "", header); rec.Code != http.StatusBadRequest {
		t.Errorf("bad source status = %d, want 400", rec.Code)
	}

	srv.audit = nil
	if rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/audit", "", header); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled audit status = %d, want 503", rec.Code)
	}
}

func TestRequireToken(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	h := srv.Handler()
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, "irbridge", future), http.StatusOK},
		{"wrong secret", "Bearer " + signToken(t, "another-secret-that-is-also-32-chars!!", "irbridge", future), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, testSecret, "someone-else", future), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, "irbridge", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.auth != "" {
				header.Set("Authorization", tt.auth)
			}
			rec := doRequest(t, h, http.MethodGet, "/api/v1/accessories", "", header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	// Health stays open.
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := testServer(t, "")
	header := http.Header{}
	header.Set("Origin", "http://panel.local")
	rec := doRequest(t, srv.Handler(), http.MethodOptions, "/api/v1/accessories", "", header)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestWebSocket_ReceivesRefresh(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	token := signToken(t, testSecret, "irbridge", time.Now().Add(time.Hour))
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?subscribe=" + ChannelAccessoryChanged + "&access_token=" + token

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d, want 101", resp.StatusCode)
	}

	// Registration happens after the upgrade completes.
	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	srv.hub.Refresh("Bedroom AC", "targetTemperature", 23)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg Frame
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != frameEvent || msg.EventType != ChannelAccessoryChanged {
		t.Errorf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["accessory"] != "Bedroom AC" || payload["value"] != float64(23) {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	srv, _ := testServer(t, testSecret)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() succeeded without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestHub_ChannelFiltering(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{}, log)

	newClient := func(channels ...string) *wsClient {
		c := &wsClient{hub: hub, send: make(chan []byte, 4), channels: map[string]struct{}{}}
		c.subscribe(channels)
		hub.add(c)
		return c
	}
	all := newClient(ChannelAccessoryChanged)
	one := newClient("accessory:Fan")
	none := newClient()

	hub.Refresh("Bedroom AC", "on", true)
	hub.Refresh("Fan", "on", true)

	if len(all.send) != 2 || len(one.send) != 1 || len(none.send) != 0 {
		t.Errorf("queued = %d/%d/%d, want 2/1/0", len(all.send), len(one.send), len(none.send))
	}
	if hub.cfg.PingInterval != defaultPingInterval || hub.cfg.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("cfg = %+v, want defaults", hub.cfg)
	}

	one.handle([]byte(`{"type":"unsubscribe","id":"1","payload":{"channels":["accessory:Fan"]}}`))
	<-one.send // drain the accessory event
	<-one.send // and the unsubscribe response
	hub.Refresh("Fan", "on", false)
	if len(one.send) != 0 {
		t.Errorf("unsubscribed client queued %d frames", len(one.send))
	}

	hub.remove(all)
	hub.remove(all)
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}
}

func TestDecodeJSONValue(t *testing.T) {
	if v, err := decodeJSONValue(json.RawMessage(`"cool"`)); err != nil || v != "cool" {
		t.Errorf("decodeJSONValue(string) = %v, %v", v, err)
	}
	if v, err := decodeJSONValue(json.RawMessage(`21.5`)); err != nil || v != json.Number("21.5") {
		t.Errorf("decodeJSONValue(number) = %#v, %v", v, err)
	}
	if _, err := decodeJSONValue(json.RawMessage(`1 2`)); err == nil {
		t.Error("decodeJSONValue(trailing) should fail")
	}
}
