package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/fusion"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Ready         bool         `json:"ready"`
	Verdict       VerdictJSON  `json:"verdict"`
	Fan           FanJSON      `json:"fan"`
	Indoor        ProbeJSON    `json:"indoor"`
	Outdoor       ProbeJSON    `json:"outdoor"`
	Clock         ClockJSON    `json:"clock"`
	Sensors       SensorsJSON  `json:"sensors"`
	Storage       bool         `json:"storage_ready"`
	Switch        bool         `json:"switch_ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// VerdictJSON is the ventilation decision.
type VerdictJSON struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Useful      bool   `json:"useful"`
}

// FanJSON is the actuator state.
type FanJSON struct {
	On            bool   `json:"on"`
	State         string `json:"state"`
	Setpoint      string `json:"setpoint"`
	RunSeconds    uint16 `json:"run_seconds"`
	RestSeconds   uint16 `json:"rest_seconds"`
	Transitions   uint64 `json:"transitions"`
	ButtonPresses int    `json:"button_presses"`
}

// ProbeJSON is one fused probe. Measurements are null when no valid sample
// is buffered.
type ProbeJSON struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	DewPoint    *float64 `json:"dew_point"`
	ValidCount  int      `json:"valid_count"`
}

// ClockJSON is the civil time view.
type ClockJSON struct {
	Local       string `json:"local"`
	Established bool   `json:"established"`
	Source      string `json:"source"`
}

// SensorsJSON reports probe health.
type SensorsJSON struct {
	InnerErrors uint64 `json:"indoor_read_errors"`
	OuterErrors uint64 `json:"outdoor_read_errors"`
	Resetting   bool   `json:"power_cycling"`
	Resets      uint64 `json:"power_cycles"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	ControlMs   int64  `json:"control_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	MinRunS     int64  `json:"min_run_s"`
	MinRestS    int64  `json:"min_rest_s"`
	Broker      string `json:"broker"`
	SwitchTopic string `json:"switch_topic,omitempty"`
	HTTPPort    string `json:"http_port"`
	DataDir     string `json:"data_dir"`
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	// One decimal, as the probes deliver.
	r := math.Round(v*10) / 10
	return &r
}

// ProbeFrom converts a fused probe average to its JSON form.
func ProbeFrom(a fusion.ProbeAverage) ProbeJSON {
	p := ProbeJSON{ValidCount: a.ValidCount}
	if a.ValidCount > 0 {
		p.Temperature = number(a.Temperature)
		p.Humidity = number(a.Humidity)
		p.DewPoint = number(a.DewPoint)
	}
	return p
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Control

	inner := StatusInner{
		BootID:  snap.BootID,
		Ready:   snap.Ready(),
		Verdict: VerdictJSON{Code: "UNKNOWN", Description: "Waiting for first cycle"},
		Fan: FanJSON{
			State:         "UNKNOWN",
			Setpoint:      "UNKNOWN",
			ButtonPresses: snap.ButtonPresses,
		},
		Clock: ClockJSON{Source: "none"},
		Sensors: SensorsJSON{
			InnerErrors: snap.Sensors.InnerErrors,
			OuterErrors: snap.Sensors.OuterErrors,
			Resetting:   snap.Sensors.Resetting,
			Resets:      snap.Sensors.Resets,
		},
		Storage:       snap.StorageReady,
		Switch:        snap.SwitchReady,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			ControlMs:   snap.Config.ControlMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			MinRunS:     snap.Config.MinRunS,
			MinRestS:    snap.Config.MinRestS,
			Broker:      snap.Config.Broker,
			SwitchTopic: snap.Config.SwitchTopic,
			HTTPPort:    snap.Config.HTTPPort,
			DataDir:     snap.Config.DataDir,
		},
	}

	if !snap.Updated {
		return inner
	}

	inner.Verdict = VerdictJSON{
		Code:        st.Verdict.String(),
		Description: st.Verdict.Description(),
		Useful:      st.Verdict.Useful(),
	}
	inner.Fan.On = st.FanOn
	inner.Fan.State = st.FanState.String()
	inner.Fan.Setpoint = st.Setpoint.String()
	inner.Fan.RunSeconds = st.RunSeconds
	inner.Fan.RestSeconds = st.RestSeconds
	inner.Fan.Transitions = st.Transitions
	inner.Indoor = ProbeFrom(st.Inner)
	inner.Outdoor = ProbeFrom(st.Outer)
	inner.Clock = ClockJSON{
		Local:       st.Local.String(),
		Established: st.TimeEstablished,
		Source:      st.TimeSource.String(),
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
