package status

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/control"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/policy"
)

func sampleState() control.State {
	return control.State{
		Local:           civiltime.Date(2024, 12, 31, 10, 10, 10),
		TimeEstablished: true,
		TimeSource:      civiltime.SourceHardware,
		Inner:           fusion.ProbeAverage{Temperature: 23.4, Humidity: 83.8, DewPoint: 20.5, ValidCount: 8},
		Outer:           fusion.ProbeAverage{Temperature: 22.7, Humidity: 58.1, DewPoint: 14.1, ValidCount: 8},
		Verdict:         policy.Useful,
		FanOn:           true,
		FanState:        fan.StateOn,
		Setpoint:        fan.SetpointAuto,
		RunSeconds:      123,
		RestSeconds:     0,
		Transitions:     7,
	}
}

func noDataState() control.State {
	nan := math.NaN()
	return control.State{
		Local:    civiltime.Date(2025, 1, 2, 3, 4, 5),
		Inner:    fusion.ProbeAverage{DewPoint: nan},
		Outer:    fusion.ProbeAverage{DewPoint: nan},
		Verdict:  policy.NoData,
		FanState: fan.StateOff,
		Setpoint: fan.SetpointOff,
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 2000, ControlMs: 1000, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, "boot-1", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID: got %q", snap.BootID)
	}
	if snap.Config.PollMs != 2000 {
		t.Errorf("Config.PollMs: got %d, want 2000", snap.Config.PollMs)
	}
	if snap.Updated || snap.Ready() {
		t.Error("expected not updated and not ready initially")
	}
	if snap.MQTTConnected || snap.StorageReady || snap.SwitchReady {
		t.Error("expected readiness flags false initially")
	}
}

func TestNewBootIDUnique(t *testing.T) {
	a, b := NewBootID(), NewBootID()
	if a == b || len(a) != 36 {
		t.Errorf("boot IDs %q %q", a, b)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.Update(sampleState())

	snap := tr.Snapshot()
	if !snap.Updated {
		t.Error("expected Updated=true")
	}
	if snap.Control.Verdict != policy.Useful {
		t.Errorf("Verdict: got %s", snap.Control.Verdict)
	}
	if !snap.Ready() {
		t.Error("expected Ready with valid probes and established time")
	}
}

func TestReadyRequiresTimeAndData(t *testing.T) {
	st := sampleState()
	st.TimeEstablished = false
	if (Snapshot{Control: st, Updated: true}).Ready() {
		t.Error("not ready without established time")
	}
	st = sampleState()
	st.Outer.ValidCount = 0
	if (Snapshot{Control: st, Updated: true}).Ready() {
		t.Error("not ready without outdoor data")
	}
}

func TestReadinessSetters(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.SetMQTTConnected(true)
	tr.SetStorageReady(true)
	tr.SetSwitchReady(true)
	tr.SetButtonPresses(4)
	tr.SetSensorHealth(SensorHealth{InnerErrors: 2, Resetting: true, Resets: 1})

	snap := tr.Snapshot()
	if !snap.MQTTConnected || !snap.StorageReady || !snap.SwitchReady {
		t.Errorf("flags: %+v", snap)
	}
	if snap.ButtonPresses != 4 || snap.Sensors.InnerErrors != 2 || !snap.Sensors.Resetting {
		t.Errorf("counters: presses=%d sensors=%+v", snap.ButtonPresses, snap.Sensors)
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil || snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network: got %+v", snap.Network)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}
	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.Update(sampleState())
	snap1 := tr.Snapshot()

	tr.Update(noDataState())

	if snap1.Control.Verdict != policy.Useful {
		t.Error("snapshot should be a copy; Verdict was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Control:       sampleState(),
		Updated:       true,
		BootID:        "b00t",
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		StorageReady:  true,
		Config:        Config{PollMs: 2000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status

	if s.Verdict.Code != "USEFUL" || !s.Verdict.Useful {
		t.Errorf("Verdict: got %+v", s.Verdict)
	}
	if !s.Fan.On || s.Fan.State != "ON" || s.Fan.Setpoint != "AUTO" || s.Fan.RunSeconds != 123 {
		t.Errorf("Fan: got %+v", s.Fan)
	}
	if s.Indoor.DewPoint == nil || *s.Indoor.DewPoint != 20.5 {
		t.Errorf("Indoor.DewPoint: got %v", s.Indoor.DewPoint)
	}
	if s.Clock.Local != "2024-12-31 10:10:10" || !s.Clock.Established || s.Clock.Source != "hardware" {
		t.Errorf("Clock: got %+v", s.Clock)
	}
	if !s.Ready || !s.Storage || s.Switch {
		t.Errorf("readiness: ready=%v storage=%v switch=%v", s.Ready, s.Storage, s.Switch)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.BootID != "b00t" {
		t.Errorf("BootID: got %q", s.BootID)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONNoDataIsNull(t *testing.T) {
	snap := Snapshot{
		Control:   noDataState(),
		Updated:   true,
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)
	if len(data) == 0 {
		t.Fatal("NaN averages must not break encoding")
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	indoor := raw["status"].(map[string]any)["indoor"].(map[string]any)
	if indoor["dew_point"] != nil || indoor["temperature"] != nil {
		t.Errorf("expected null measurements, got %v", indoor)
	}
}

func TestFormatJSONBeforeFirstUpdate(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Verdict.Code != "UNKNOWN" {
		t.Errorf("Verdict: got %q, want UNKNOWN", parsed.Status.Verdict.Code)
	}
	if parsed.Status.Fan.Setpoint != "UNKNOWN" {
		t.Errorf("Setpoint: got %q, want UNKNOWN", parsed.Status.Fan.Setpoint)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Control:   sampleState(),
		Updated:   true,
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "HEARTBEAT", ""), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC),
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" || parsed.Status.Reason != "SIGTERM" {
		t.Errorf("got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]any
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]any)
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestFormatRecord(t *testing.T) {
	got := FormatRecord(RecordFrom(sampleState()))
	want := "2024-12-31 10:10:10;+23.4;+22.7;+83.8;+58.1;+20.5;+14.1;8;8;f1;m1;123;0"
	if got != want {
		t.Errorf("FormatRecord:\n got %q\nwant %q", got, want)
	}
}

func TestFormatRecordNoData(t *testing.T) {
	got := FormatRecord(RecordFrom(noDataState()))
	want := "2025-01-02 03:04:05;+0.0;+0.0;+0.0;+0.0;nan;nan;0;0;f0;m0;0;0"
	if got != want {
		t.Errorf("FormatRecord:\n got %q\nwant %q", got, want)
	}
}

func TestFormatRecordNegativeAndModeOn(t *testing.T) {
	r := Record{
		Local:       civiltime.Date(2025, 2, 1, 6, 0, 0),
		Inner:       fusion.ProbeAverage{Temperature: 12.04, Humidity: 55, DewPoint: 3.06, ValidCount: 5},
		Outer:       fusion.ProbeAverage{Temperature: -7.25, Humidity: 90, DewPoint: -8.5, ValidCount: 7},
		Setpoint:    fan.SetpointOn,
		RestSeconds: 65435,
	}
	got := FormatRecord(r)
	if !strings.Contains(got, ";+12.0;-7.2;") && !strings.Contains(got, ";+12.0;-7.3;") {
		t.Errorf("temperatures not signed with one decimal: %q", got)
	}
	if !strings.HasSuffix(got, ";5;7;f0;m2;0;65435") {
		t.Errorf("tail: %q", got)
	}
}

func TestCSVHeaderMatchesRecordFields(t *testing.T) {
	header := strings.Split(CSVHeader, ";")
	fields := strings.Split(FormatRecord(RecordFrom(sampleState())), ";")
	if len(header) != 13 || len(fields) != len(header) {
		t.Errorf("header has %d fields, record %d", len(header), len(fields))
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(sampleState())
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
