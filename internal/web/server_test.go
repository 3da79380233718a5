package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/status"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		DeviceID:     "bench-1",
		PollMs:       50,
		SettleMs:     20,
		IndicatorMs:  7000,
		InactivityMs: 600000,
		Telemetry:    true,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPPort:     ":8080",
		Timezone:     "Europe/Copenhagen",
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getStatus(t *testing.T, url string) (status.StatusJSON, *http.Response) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj, resp
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetWake(logic.WakeColdStart)
	tr.Update(logic.PhaseActive, logic.DeviceState{ActivePeriod: true, LastButton: 3}, 3, true, logic.Counts{Presses: 5, Delivered: 4, PublishRejected: 1})
	tr.SetMQTTConnected(true)

	sj, resp := getStatus(t, ts.URL+"/index.json")

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	if sj.Status.DeviceID != "bench-1" {
		t.Errorf("DeviceID: got %q, want bench-1", sj.Status.DeviceID)
	}
	if sj.Status.Phase != "ACTIVE" {
		t.Errorf("Phase: got %q, want ACTIVE", sj.Status.Phase)
	}
	if sj.Status.WakeCause != "COLD_START" {
		t.Errorf("WakeCause: got %q, want COLD_START", sj.Status.WakeCause)
	}
	if sj.Status.LastButton != 3 {
		t.Errorf("LastButton: got %d, want 3", sj.Status.LastButton)
	}
	if sj.Status.Indicator == nil || *sj.Status.Indicator != 3 {
		t.Errorf("Indicator: got %v, want 3", sj.Status.Indicator)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Presses != 5 {
		t.Errorf("Counts.Presses: got %d, want 5", sj.Status.Counts.Presses)
	}
	if sj.Status.Counts.PublishRejected != 1 {
		t.Errorf("Counts.PublishRejected: got %d, want 1", sj.Status.Counts.PublishRejected)
	}
	if sj.Status.Config.IndicatorMs != 7000 {
		t.Errorf("Config.IndicatorMs: got %d, want 7000", sj.Status.Config.IndicatorMs)
	}
}

func TestRootServesJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	sj, resp := getStatus(t, ts.URL+"/")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		t.Errorf("Content-Type: got %q", resp.Header.Get("Content-Type"))
	}
	if sj.Status.Phase != "UNKNOWN" {
		t.Errorf("Phase before first update: got %q, want UNKNOWN", sj.Status.Phase)
	}
	if sj.Status.Indicator != nil {
		t.Errorf("Indicator before first update: got %v, want nil", *sj.Status.Indicator)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj, _ := getStatus(t, ts.URL+"/index.json")

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	sj1, _ := getStatus(t, ts.URL+"/index.json")
	if sj1.Status.ActivePeriod {
		t.Error("expected active_period=false initially")
	}

	tr.Update(logic.PhaseActive, logic.DeviceState{ActivePeriod: true, LastButton: 0}, 0, true, logic.Counts{Presses: 1})
	tr.SetMQTTConnected(true)

	sj2, _ := getStatus(t, ts.URL+"/index.json")
	if !sj2.Status.ActivePeriod {
		t.Error("expected active_period=true after update")
	}
	if sj2.Status.Counts.Presses != 1 {
		t.Errorf("Counts.Presses: got %d, want 1", sj2.Status.Counts.Presses)
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
