package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/history"
	"github.com/sweeney/dewpoint-fan/internal/policy"
	"github.com/sweeney/dewpoint-fan/internal/status"
)

type fakeHistory struct {
	entries []history.Entry
	err     error
	asked   int
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]history.Entry, error) {
	f.asked = n
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.entries) {
		return f.entries[:n], nil
	}
	return f.entries, nil
}

type testEnv struct {
	ts       *httptest.Server
	tracker  *status.Tracker
	history  *fakeHistory
	commands chan control.Command
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		PollMs:      2000,
		ControlMs:   1000,
		DebounceMs:  50,
		HeartbeatMs: 900000,
		MinRunS:     960,
		MinRestS:    600,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPPort:    ":80",
	}
	env := &testEnv{
		tracker:  status.NewTracker(start, "boot-1", cfg),
		history:  &fakeHistory{},
		commands: make(chan control.Command, 1),
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "dewpoint_fan_fan_on 1\n")
	})
	srv := New(":0", env.tracker, Options{History: env.history, Metrics: metrics, Commands: env.commands})
	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func runningState() control.State {
	return control.State{
		Local:           civiltime.Date(2025, 6, 15, 13, 0, 0),
		TimeEstablished: true,
		TimeSource:      civiltime.SourceHardware,
		Inner:           fusion.ProbeAverage{Temperature: 20, Humidity: 70, DewPoint: 14.36, ValidCount: 8},
		Outer:           fusion.ProbeAverage{Temperature: 12, Humidity: 60, DewPoint: 4.42, ValidCount: 8},
		Verdict:         policy.Useful,
		FanOn:           true,
		FanState:        fan.StateOn,
		Setpoint:        fan.SetpointAuto,
		RunSeconds:      42,
		Transitions:     3,
	}
}

func getJSON(t *testing.T, u string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Update(runningState())
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Verdict.Code != "USEFUL" {
		t.Errorf("Verdict.Code: got %q, want USEFUL", sj.Status.Verdict.Code)
	}
	if !sj.Status.Fan.On || sj.Status.Fan.Setpoint != "AUTO" {
		t.Errorf("Fan: got %+v", sj.Status.Fan)
	}
	if !sj.Status.Ready {
		t.Error("expected Ready=true")
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Indoor.DewPoint == nil || *sj.Status.Indoor.DewPoint != 14.4 {
		t.Errorf("Indoor.DewPoint: got %v, want 14.4", sj.Status.Indoor.DewPoint)
	}
	if sj.Status.Config.MinRunS != 960 {
		t.Errorf("Config.MinRunS: got %d, want 960", sj.Status.Config.MinRunS)
	}
}

func TestJSONUnknownStateBeforeFirstCycle(t *testing.T) {
	env := newTestServer(t)
	sj := getJSON(t, env.ts.URL+"/index.json")
	if sj.Status.Verdict.Code != "UNKNOWN" {
		t.Errorf("Verdict before first cycle: got %q, want UNKNOWN", sj.Status.Verdict.Code)
	}
	if sj.Status.Fan.State != "UNKNOWN" {
		t.Errorf("Fan.State before first cycle: got %q, want UNKNOWN", sj.Status.Fan.State)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false")
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	env := newTestServer(t)
	env.tracker.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, env.ts.URL+"/index.json")
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	env := newTestServer(t)
	env.tracker.Update(runningState())

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"Ventilation is useful", "2025-06-15 13:00:00", "14.4 °C", "AUTO"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "UNKNOWN") {
		t.Error("page before first cycle should show UNKNOWN verdict")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	env := newTestServer(t)

	if sj := getJSON(t, env.ts.URL+"/index.json"); sj.Status.Ready {
		t.Error("expected Ready=false initially")
	}

	st := runningState()
	st.FanOn = false
	st.FanState = fan.StateOff
	env.tracker.Update(st)
	env.tracker.SetMQTTConnected(true)

	sj := getJSON(t, env.ts.URL+"/index.json")
	if !sj.Status.Ready {
		t.Error("expected Ready=true after update")
	}
	if sj.Status.Fan.State != "OFF" {
		t.Errorf("Fan.State: got %q, want OFF", sj.Status.Fan.State)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}

func historyEntries() []history.Entry {
	newer := status.RecordFrom(runningState())
	older := newer
	older.Local = civiltime.Date(2025, 6, 15, 12, 54, 0)
	older.FanOn = false
	return []history.Entry{
		{ID: 2, Record: newer, Verdict: policy.Useful},
		{ID: 1, Record: older, Verdict: policy.TooColdInside},
	}
}

func TestHistoryJSON(t *testing.T) {
	env := newTestServer(t)
	env.history.entries = historyEntries()

	resp, err := http.Get(env.ts.URL + "/history.json?limit=5")
	if err != nil {
		t.Fatalf("GET /history.json: %v", err)
	}
	defer resp.Body.Close()

	var hj HistoryJSON
	if err := json.NewDecoder(resp.Body).Decode(&hj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.history.asked != 5 {
		t.Errorf("limit passed to store: got %d, want 5", env.history.asked)
	}
	if len(hj.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(hj.Records))
	}
	r := hj.Records[0]
	if r.ID != 2 || r.Local != "2025-06-15 13:00:00" || !r.FanOn || r.Verdict != "USEFUL" {
		t.Errorf("first record: got %+v", r)
	}
	if r.Outdoor.Temperature == nil || *r.Outdoor.Temperature != 12 {
		t.Errorf("Outdoor.Temperature: got %v", r.Outdoor.Temperature)
	}
}

func TestHistoryDefaultAndCappedLimit(t *testing.T) {
	env := newTestServer(t)

	resp, _ := http.Get(env.ts.URL + "/history.json")
	resp.Body.Close()
	if env.history.asked != DefaultHistoryLimit {
		t.Errorf("default limit: got %d, want %d", env.history.asked, DefaultHistoryLimit)
	}

	resp, _ = http.Get(env.ts.URL + "/history.json?limit=999999")
	resp.Body.Close()
	if env.history.asked != MaxHistoryLimit {
		t.Errorf("capped limit: got %d, want %d", env.history.asked, MaxHistoryLimit)
	}
}

func TestHistoryBadLimit(t *testing.T) {
	env := newTestServer(t)
	for _, q := range []string{"0", "-3", "ten"} {
		resp, err := http.Get(env.ts.URL + "/history.json?limit=" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHistoryStoreError(t *testing.T) {
	env := newTestServer(t)
	env.history.err = errors.New("database is locked")

	resp, err := http.Get(env.ts.URL + "/history.json")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

func TestHistoryCSVOldestFirst(t *testing.T) {
	env := newTestServer(t)
	env.history.entries = historyEntries()

	resp, err := http.Get(env.ts.URL + "/history.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines: got %d, want 3:\n%s", len(lines), body)
	}
	if lines[0] != status.CSVHeader {
		t.Errorf("header: got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2025-06-15 12:54:00;") {
		t.Errorf("first row should be the oldest, got %q", lines[1])
	}
	if !strings.Contains(lines[2], ";f1;m1;42;0") {
		t.Errorf("second row: got %q", lines[2])
	}
}

func TestMetricsRoute(t *testing.T) {
	env := newTestServer(t)
	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "dewpoint_fan_fan_on") {
		t.Errorf("metrics body: %q", body)
	}
}

func TestAdvanceQueuesCommand(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/api/setpoint/advance", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}

	select {
	case cmd := <-env.commands:
		if cmd.Kind != control.CommandAdvanceSetpoint || cmd.Origin != "http" {
			t.Errorf("command: got %+v", cmd)
		}
	default:
		t.Fatal("no command queued")
	}
}

func TestAdvanceFromPageRedirectsBack(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.PostForm(env.ts.URL+"/api/setpoint/advance", url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "<html") {
		t.Errorf("form post should land back on the status page, got %d", resp.StatusCode)
	}
	if len(env.commands) != 1 {
		t.Errorf("queued commands: got %d, want 1", len(env.commands))
	}
}

func TestAdvanceBusyWhenQueueFull(t *testing.T) {
	env := newTestServer(t)
	env.commands <- control.Command{Kind: control.CommandAdvanceSetpoint}

	resp, err := http.Post(env.ts.URL+"/api/setpoint/advance", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", resp.StatusCode)
	}
}

func TestAdvanceRequiresPost(t *testing.T) {
	env := newTestServer(t)
	resp, err := http.Get(env.ts.URL + "/api/setpoint/advance")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
	if len(env.commands) != 0 {
		t.Error("GET must not queue a command")
	}
}

func TestSetTimeJSON(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/api/time", "application/json",
		strings.NewReader(`{"local":"30.03.2025 14:05"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", resp.StatusCode)
	}
	cmd := <-env.commands
	if cmd.Kind != control.CommandSetLocalTime || cmd.Local != civiltime.Date(2025, 3, 30, 14, 5, 0) {
		t.Errorf("command: got %+v", cmd)
	}
}

// noRedirect returns a client that hands back redirects instead of
// following them.
func noRedirect() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestSetTimeForm(t *testing.T) {
	env := newTestServer(t)

	resp, err := noRedirect().PostForm(env.ts.URL+"/api/time", url.Values{"local": {"2025-10-26 02:30"}})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("status: got %d to %q, want 303 to /", resp.StatusCode, resp.Header.Get("Location"))
	}
	cmd := <-env.commands
	if cmd.Local != civiltime.Date(2025, 10, 26, 2, 30, 0) || cmd.Origin != "http" {
		t.Errorf("command: got %+v", cmd)
	}
}

func TestSetTimeRejectsBadInput(t *testing.T) {
	env := newTestServer(t)
	tests := []struct {
		contentType string
		body        string
	}{
		{"application/json", `{"local":"yesterday"}`},
		{"application/json", `{not json`},
		{"application/x-www-form-urlencoded", "local=25%3A99"},
	}
	for _, tt := range tests {
		resp, err := http.Post(env.ts.URL+"/api/time", tt.contentType, strings.NewReader(tt.body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s %q: got %d, want 400", tt.contentType, tt.body, resp.StatusCode)
		}
	}
	if len(env.commands) != 0 {
		t.Error("invalid requests must not queue commands")
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	tr := status.NewTracker(time.Now(), "boot", status.Config{})
	ts := httptest.NewServer(New(":0", tr, Options{}).Handler())
	defer ts.Close()

	for _, path := range []string{"/history.json", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, resp.StatusCode)
		}
	}
	resp, err := http.Post(ts.URL+"/api/setpoint/advance", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("advance without command channel: got %d, want 404", resp.StatusCode)
	}
}
