package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/petcare-telemetry-service/internal/analytics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/config"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/eventlog"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/ingest"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/metrics"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/notify"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/service"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/store"
	"github.com/PratikDhanave/petcare-telemetry-service/internal/stream"
)

////////////////////////////////////////////////////////////////////////////////
// HTTP TEST SUITE
//
// These tests drive the real router end-to-end:
//
//   Client → HTTP API → Auth → Service → Store (temp dir) → Response
//
// Every test gets its own data directory and metrics registry.
//
////////////////////////////////////////////////////////////////////////////////

const (
	tabletKey   = "tablet-key-123"
	firmwareKey = "firmware-key-456"
)

type testServer struct {
	url string
	hub *stream.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tuning := config.DefaultTuning()

	ctx, cancel := context.WithCancel(context.Background())
	hub := stream.NewHub(stream.WithMetrics(m))
	go hub.Run(ctx)

	st := store.New(backend, store.WithMetrics(m))
	logs := eventlog.New(st, eventlog.WithMetrics(m))
	center := notify.NewCenter(st, tuning.Notifications, notify.WithPublisher(hub), notify.WithMetrics(m))
	engine := analytics.New(st, logs, center, tuning.Analytics, analytics.WithMetrics(m), analytics.WithLocation(time.UTC))
	ing := ingest.New(st, logs, center, tuning.Ingest, ingest.WithAnalyzer(engine), ingest.WithMetrics(m))
	svc := service.New(st, logs, center, tuning.Service,
		service.WithSnapshotter(ing), service.WithFoodAnalyzer(engine))

	cfg := config.Config{APIKeys: map[string]string{tabletKey: "tablet", firmwareKey: "firmware"}}
	srv := httptest.NewServer(NewRouter(cfg, Deps{Service: svc, Hub: hub, Gatherer: reg}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{url: srv.URL, hub: hub}
}

////////////////////////////////////////////////////////////////////////////////
// GENERIC HTTP HELPERS
////////////////////////////////////////////////////////////////////////////////

// do performs a request with an optional API key and JSON body.
func (s *testServer) do(t *testing.T, method, apiKey, path string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		if raw, ok := payload.(string); ok {
			body = strings.NewReader(raw)
		} else {
			b, _ := json.Marshal(payload)
			body = bytes.NewReader(b)
		}
	}

	req, _ := http.NewRequest(method, s.url+path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// decode unmarshals a JSON response body.
func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", b, err)
	}
	return v
}

// errorCode extracts the stable error code from an error body.
func errorCode(t *testing.T, b []byte) string {
	return decode[map[string]string](t, b)["code"]
}

////////////////////////////////////////////////////////////////////////////////
// HEALTH, READINESS & METRICS TESTS
////////////////////////////////////////////////////////////////////////////////

// Health endpoint = liveness check (server process running).
func TestHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, "GET", "", "/health", nil); code != http.StatusOK {
		t.Fatalf("health expected 200 got %d", code)
	}
}

// Ready endpoint = storage backend reachable.
func TestReady_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, "GET", "", "/ready", nil); code != http.StatusOK {
		t.Fatalf("ready expected 200 got %d", code)
	}
}

// Prometheus exposition is public and reflects store traffic.
func TestMetrics_ExposesStoreCounters(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "PUT", tabletKey, "/api/documents/settings", map[string]any{"theme": "dark"})

	code, b := s.do(t, "GET", "", "/metrics", nil)
	if code != http.StatusOK {
		t.Fatalf("metrics expected 200 got %d", code)
	}
	if !strings.Contains(string(b), "petcare_store_operations_total") {
		t.Fatalf("store counters missing from metrics output")
	}
}

////////////////////////////////////////////////////////////////////////////////
// DOCUMENT CONTRACT TESTS
////////////////////////////////////////////////////////////////////////////////

// Request without API key must be rejected.
func TestDocuments_UnauthorizedWithoutAPIKey(t *testing.T) {
	s := newTestServer(t)
	code, b := s.do(t, "GET", "", "/api/documents", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", code)
	}
	if errorCode(t, b) != "unauthorized" {
		t.Fatalf("unexpected error body %s", b)
	}
}

// Put, get, merge, list, delete round trip.
func TestDocuments_CRUD(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, "PUT", tabletKey, "/api/documents/settings", map[string]any{"theme": "dark", "units": "metric"})
	if code != http.StatusOK {
		t.Fatalf("put expected 200 got %d", code)
	}

	code, b := s.do(t, "PATCH", tabletKey, "/api/documents/settings", map[string]any{"theme": "light", "units": nil})
	if code != http.StatusOK {
		t.Fatalf("patch expected 200 got %d", code)
	}
	merged := decode[map[string]any](t, b)
	if merged["theme"] != "light" || merged["units"] != nil {
		t.Fatalf("unexpected merge result %v", merged)
	}

	_, b = s.do(t, "GET", tabletKey, "/api/documents", nil)
	list := decode[map[string][]string](t, b)
	if len(list["documents"]) != 1 || list["documents"][0] != "settings" {
		t.Fatalf("unexpected document list %v", list)
	}

	if code, _ := s.do(t, "DELETE", tabletKey, "/api/documents/settings", nil); code != http.StatusNoContent {
		t.Fatalf("delete expected 204 got %d", code)
	}
	code, b = s.do(t, "GET", tabletKey, "/api/documents/settings", nil)
	if code != http.StatusNotFound || errorCode(t, b) != "not_found" {
		t.Fatalf("expected 404 not_found got %d %s", code, b)
	}
}

// Unsafe names never reach storage.
func TestDocuments_RejectsTraversal(t *testing.T) {
	s := newTestServer(t)
	for _, name := range []string{"a/../b", "..%2F..%2Fetc%2Fpasswd", "%2Fetc%2Fpasswd"} {
		code, b := s.do(t, "GET", tabletKey, "/api/documents/"+name, nil)
		if code != http.StatusBadRequest || errorCode(t, b) != "invalid_path" {
			t.Fatalf("%s: expected 400 invalid_path got %d %s", name, code, b)
		}
	}
}

// Merge requires an object body.
func TestDocuments_MergeValidation(t *testing.T) {
	s := newTestServer(t)

	code, b := s.do(t, "PATCH", tabletKey, "/api/documents/settings", []any{1, 2})
	if code != http.StatusBadRequest || errorCode(t, b) != "validation_error" {
		t.Fatalf("expected 400 validation_error got %d %s", code, b)
	}

	code, _ = s.do(t, "PATCH", tabletKey, "/api/documents/settings", "{not json")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", code)
	}
}

////////////////////////////////////////////////////////////////////////////////
// CORE SYSTEM BEHAVIOR TESTS
////////////////////////////////////////////////////////////////////////////////

// Firmware snapshots are ingested: a 12 point water drop becomes an intake event.
func TestSnapshot_WaterDropRecorded(t *testing.T) {
	s := newTestServer(t)

	s.do(t, "POST", firmwareKey, "/api/documents/environment-current", map[string]any{"waterLevel": 80})
	code, _ := s.do(t, "POST", firmwareKey, "/api/documents/environment-current", map[string]any{"waterLevel": 68})
	if code != http.StatusOK {
		t.Fatalf("snapshot expected 200 got %d", code)
	}

	_, b := s.do(t, "GET", tabletKey, "/api/documents/water-events", nil)
	events := decode[[]map[string]any](t, b)
	if len(events) != 1 || events[0]["delta"] != 12.0 {
		t.Fatalf("unexpected water events %v", events)
	}

	_, b = s.do(t, "GET", tabletKey, "/api/documents/dashboard", nil)
	if decode[map[string]any](t, b)["waterLevel"] != 68.0 {
		t.Fatalf("dashboard not mirrored: %s", b)
	}

	code, _ = s.do(t, "GET", tabletKey, "/api/documents/analysis", nil)
	if code != http.StatusOK {
		t.Fatalf("analysis expected after intake, got %d", code)
	}
}

// Three dispenses add up to 60g.
func TestActions_DispenseFood(t *testing.T) {
	s := newTestServer(t)

	var b []byte
	for i := 0; i < 3; i++ {
		var code int
		code, b = s.do(t, "POST", tabletKey, "/api/actions", map[string]any{"action": "dispense_food"})
		if code != http.StatusOK {
			t.Fatalf("action expected 200 got %d %s", code, b)
		}
	}
	resp := decode[struct {
		Action    string         `json:"action"`
		Dashboard map[string]any `json:"dashboard"`
	}](t, b)
	if resp.Dashboard["lastMeal"] != 60.0 {
		t.Fatalf("expected lastMeal 60 got %v", resp.Dashboard["lastMeal"])
	}

	_, b = s.do(t, "GET", tabletKey, "/api/documents/actions", nil)
	audit := decode[[]map[string]any](t, b)
	if len(audit) != 3 || audit[0]["client"] != "tablet" {
		t.Fatalf("unexpected audit log %v", audit)
	}
}

// Unknown actions are a client error.
func TestActions_Unsupported(t *testing.T) {
	s := newTestServer(t)
	code, b := s.do(t, "POST", tabletKey, "/api/actions", map[string]any{"action": "launch"})
	if code != http.StatusBadRequest || errorCode(t, b) != "unsupported_action" {
		t.Fatalf("expected 400 unsupported_action got %d %s", code, b)
	}
}

// Schedule validation and dashboard mirroring.
func TestFeeding_Schedule(t *testing.T) {
	s := newTestServer(t)

	code, b := s.do(t, "POST", tabletKey, "/api/feeding/schedule", map[string]any{"meal1Time": "7am", "mealAmount": 100})
	if code != http.StatusBadRequest || errorCode(t, b) != "validation_error" {
		t.Fatalf("expected 400 validation_error got %d %s", code, b)
	}

	code, _ = s.do(t, "POST", tabletKey, "/api/feeding/schedule", map[string]any{
		"weight": 11.2, "meal1Time": "07:30", "meal2Time": "19:00", "mealAmount": 120,
	})
	if code != http.StatusOK {
		t.Fatalf("schedule expected 200 got %d", code)
	}
	_, b = s.do(t, "GET", tabletKey, "/api/documents/dashboard", nil)
	dash := decode[map[string]any](t, b)
	if dash["meal1Time"] != "07:30" || dash["weight"] != 11.2 {
		t.Fatalf("schedule not mirrored: %v", dash)
	}
}

// Push acknowledgement is idempotent.
func TestNotifications_AcknowledgePushed(t *testing.T) {
	s := newTestServer(t)

	s.do(t, "POST", firmwareKey, "/api/documents/environment-current", map[string]any{"barkAlert": true, "barkCount": 3})
	_, b := s.do(t, "GET", tabletKey, "/api/documents/notifications", nil)
	notes := decode[[]map[string]any](t, b)
	if len(notes) != 1 || notes[0]["pushType"] != "bark" {
		t.Fatalf("unexpected notifications %v", notes)
	}

	payload := map[string]any{"times": []string{notes[0]["time"].(string)}}
	_, b = s.do(t, "POST", tabletKey, "/api/notifications/pushed", payload)
	if decode[map[string]int](t, b)["acknowledged"] != 1 {
		t.Fatalf("expected 1 acknowledged got %s", b)
	}
	_, b = s.do(t, "POST", tabletKey, "/api/notifications/pushed", payload)
	if decode[map[string]int](t, b)["acknowledged"] != 0 {
		t.Fatalf("expected 0 acknowledged got %s", b)
	}
}

// Live feed delivers notifications recorded after connecting.
func TestNotifications_Stream(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.url, "http") + "/api/notifications/stream?api_key=" + tabletKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	if msg := decode[map[string]any](t, data); msg["type"] != "connected" {
		t.Fatalf("expected connected frame got %s", data)
	}

	s.do(t, "POST", firmwareKey, "/api/documents/environment-current", map[string]any{"barkAlert": true})

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msg := decode[map[string]any](t, data)
	payload, _ := msg["payload"].(map[string]any)
	if msg["type"] != "notification" || payload["pushType"] != "bark" {
		t.Fatalf("unexpected stream frame %s", data)
	}
}
