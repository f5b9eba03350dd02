package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fronius-io/gen24-collector/collector"
	"github.com/fronius-io/gen24-collector/config"
	"github.com/fronius-io/gen24-collector/discovery"
	"github.com/fronius-io/gen24-collector/inverter"
	"github.com/fronius-io/gen24-collector/site"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestServer(t *testing.T) (*Server, *collector.Collector) {
	t.Helper()

	cfg := config.DefaultConfig()
	client := inverter.NewClient(2 * time.Second)
	st := site.New(client)
	disc := discovery.New(testLogger())
	coll := collector.New(st, disc, nil, testLogger())

	return NewServer(cfg, coll, testLogger()), coll
}

func TestHandleStatusReportsDeviceCountAndNoScanYet(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["lastScan"] != nil {
		t.Errorf("lastScan = %v, want nil before any scan", body["lastScan"])
	}
	if body["deviceCount"].(float64) != 0 {
		t.Errorf("deviceCount = %v, want 0", body["deviceCount"])
	}
}

func TestHandleStatusReflectsAdoptedDevices(t *testing.T) {
	srv, coll := newTestServer(t)

	coll.Site().AdoptDiscovered([]discovery.Device{
		{Serial: "12345", IP: "10.0.0.5", IsMaster: true},
	})

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["deviceCount"].(float64) != 1 {
		t.Fatalf("deviceCount = %v, want 1", body["deviceCount"])
	}
	devices := body["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices length = %d, want 1", len(devices))
	}
	dev := devices[0].(map[string]any)
	if dev["serial"] != "12345" || dev["isMaster"] != true {
		t.Errorf("device = %+v, want serial 12345 isMaster true", dev)
	}
}

func TestHandleDoRejectsUnknownAction(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/do", strings.NewReader(`{"action":"reboot"}`))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestHandleDoAcceptsScanAction(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/do", strings.NewReader(`{"action":"scan"}`))
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
}

func TestHandleHistoryEmptyWhenNeverPolled(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/history", nil)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	hist := body["history"].(map[string]any)
	if len(hist) != 0 {
		t.Errorf("history = %v, want empty", hist)
	}
}
