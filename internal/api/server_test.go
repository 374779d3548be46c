package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/entity"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptcontrol/internal/ingest"
	"github.com/nerrad567/ptcontrol/internal/status"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubReader struct {
	records []entity.Record
	err     error
}

func (s *stubReader) Latest(context.Context) ([]entity.Record, error) {
	return s.records, s.err
}

type stubEngine struct{}

func (stubEngine) Stats() control.Stats {
	return control.Stats{Ticks: 7, Transitions: 2, IntervalSeconds: 10}
}

type stubConn struct{ up bool }

func (s stubConn) Stats() mqtt.Stats {
	return mqtt.Stats{Connected: s.up, Subscriptions: 1, Connects: 1}
}

type stubRelay struct{}

func (stubRelay) Stats() ingest.RelayStats { return ingest.RelayStats{Relayed: 4, Ignored: 1} }

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// testServer returns a server with a stub store reader and a real alert buffer.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *stubReader, *alert.Buffer) {
	t.Helper()

	reader := &stubReader{}
	buf := alert.NewBuffer(5)
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:         testWSConfig(),
		Logger:     logging.Discard(),
		Status:     status.NewAggregator(reader, func() time.Time { return testNow }),
		Alerts:     buf,
		AlertLimit: 3,
		Version:    "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return srv, reader, buf
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()
	var e Error
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestNew_RequiresLogger(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	w := get(t, srv, "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	w := get(t, srv, "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestCORS(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://dashboard.local"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

func TestNotFound(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	w := get(t, srv, "/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeNotFound || e.Status != 404 {
		t.Errorf("error = %+v", e)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/status", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

// ─── Status ────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, reader, _ := testServer(t, nil)
	v := 100.0
	reader.records = []entity.Record{
		{Key: entity.KeyTemperature, Kind: entity.KindSensor, Value: &v, Unit: "C",
			Liveness: entity.LivenessOK, UpdatedAt: testNow.Add(-2 * time.Second)},
		{Key: entity.KeyHeatValve, Kind: entity.KindActuator, UpdatedAt: testNow},
	}

	for _, path := range []string{"/status", "/api/v1/status"} {
		w := get(t, srv, path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, w.Code)
		}

		var body map[string]json.RawMessage
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(body["heat_valve"]) != `"CLOSED"` {
			t.Errorf("heat_valve = %s", body["heat_valve"])
		}
		var temp status.SensorView
		if err := json.Unmarshal(body["Temperature"], &temp); err != nil {
			t.Fatalf("decode Temperature: %v", err)
		}
		if temp.Status != "OK" || temp.Value == nil || *temp.Value != 100 || temp.Age != 2 {
			t.Errorf("Temperature = %+v", temp)
		}
	}
}

func TestStatus_StoreUnavailable(t *testing.T) {
	srv, reader, _ := testServer(t, nil)
	reader.err = errors.New("database is locked")

	w := get(t, srv, "/status")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeStoreUnavailable {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeStoreUnavailable)
	}
}

func TestStatus_NotMountedWithoutSource(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Status = nil })
	if w := get(t, srv, "/status"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Alerts ────────────────────────────────────────────────────────

func addAlerts(buf *alert.Buffer, messages ...string) {
	for i, m := range messages {
		buf.Add(alert.New(m, testNow.Add(time.Duration(i)*time.Second)))
	}
}

func decodeAlerts(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var alerts []alert.Alert
	if err := json.NewDecoder(w.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	msgs := make([]string, len(alerts))
	for i, a := range alerts {
		if a.ID == "" {
			t.Errorf("alert %d has no id", i)
		}
		msgs[i] = a.Message
	}
	return msgs
}

func TestAlerts(t *testing.T) {
	srv, _, buf := testServer(t, nil)
	addAlerts(buf, "a", "b", "c", "d", "e", "f")

	tests := []struct {
		path string
		want []string
	}{
		{"/alerts", []string{"d", "e", "f"}},
		{"/api/v1/alerts", []string{"d", "e", "f"}},
		{"/alerts?limit=1", []string{"f"}},
		{"/alerts?limit=50", []string{"b", "c", "d", "e", "f"}},
	}
	for _, tt := range tests {
		w := get(t, srv, tt.path)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", tt.path, w.Code)
		}
		if got := decodeAlerts(t, w); strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAlerts_Empty(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	w := get(t, srv, "/alerts")
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestAlerts_BadLimit(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	for _, q := range []string{"abc", "0", "-2"} {
		w := get(t, srv, "/alerts?limit="+q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, w.Code)
		}
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	srv, _, buf := testServer(t, func(d *Deps) {
		d.Engine = stubEngine{}
		d.MQTT = stubConn{up: true}
	})
	addAlerts(buf, "x")

	w := get(t, srv, "/api/v1/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Engine == nil || m.Engine.Ticks != 7 {
		t.Errorf("engine = %+v", m.Engine)
	}
	if m.MQTT == nil || !m.MQTT.Connected || m.MQTT.Subscriptions != 1 {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if m.Alerts == nil || m.Alerts.Buffered != 1 || m.Alerts.Capacity != 5 {
		t.Errorf("alerts = %+v", m.Alerts)
	}
	if m.Database != nil || m.Ingest != nil || m.Relay != nil {
		t.Error("sections for absent components should be omitted")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime metrics missing")
	}
}

func TestMetrics_Relay(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Relay = stubRelay{} })

	w := get(t, srv, "/api/v1/metrics")
	var m SystemMetrics
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Relay == nil || m.Relay.Relayed != 4 || m.Relay.Ignored != 1 {
		t.Errorf("relay = %+v", m.Relay)
	}
}

// ─── Recovery ──────────────────────────────────────────────────────

type panicSource struct{}

func (panicSource) Snapshot(context.Context) (status.Snapshot, error) { panic("boom") }

func TestRecovery(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Status = panicSource{} })
	w := get(t, srv, "/status")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestServer_HealthCheck(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, _, _ := testServer(t, func(d *Deps) { d.Config.Port = 19180 })

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	var resp *http.Response
	var err error
	for range 20 {
		resp, err = http.Get("http://127.0.0.1:19180/api/v1/health")
		if err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get("http://127.0.0.1:19180/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}
