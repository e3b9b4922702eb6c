// Package status provides a thread-safe status tracker for the dewpoint-fan daemon.
// It is read by HTTP handlers and the MQTT publisher while the run loop writes it.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/dewpoint-fan/internal/control"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	ControlMs   int64
	DebounceMs  int64
	HeartbeatMs int64
	MinRunS     int64
	MinRestS    int64
	Broker      string
	SwitchTopic string // empty = wireless switch disabled
	HTTPPort    string
	DataDir     string
}

// SensorHealth summarises probe read failures and power cycles.
type SensorHealth struct {
	InnerErrors uint64
	OuterErrors uint64
	Resetting   bool
	Resets      uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Control       control.State
	Updated       bool // Control has been set at least once
	Sensors       SensorHealth
	ButtonPresses int
	StorageReady  bool
	SwitchReady   bool
	MQTTConnected bool
	BootID        string
	StartTime     time.Time
	Now           time.Time
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether both probes have produced data and the clock is
// trustworthy.
func (s Snapshot) Ready() bool {
	return s.Updated && s.Control.TimeEstablished &&
		s.Control.Inner.Valid() && s.Control.Outer.Valid()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewBootID returns a random identifier for this process lifetime. It lets
// subscribers tell a restart from a reconnect.
func NewBootID() string {
	return uuid.NewString()
}

// NewTracker creates a Tracker with the given start time, boot ID and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the controller state.
// Called from runLoop on every control tick.
func (t *Tracker) Update(st control.State) {
	t.mu.Lock()
	t.snap.Control = st
	t.snap.Updated = true
	t.mu.Unlock()
}

// SetSensorHealth sets the probe error counters and power cycle state.
func (t *Tracker) SetSensorHealth(h SensorHealth) {
	t.mu.Lock()
	t.snap.Sensors = h
	t.mu.Unlock()
}

// SetButtonPresses sets the number of debounced button presses.
func (t *Tracker) SetButtonPresses(n int) {
	t.mu.Lock()
	t.snap.ButtonPresses = n
	t.mu.Unlock()
}

// SetStorageReady sets whether the data log directory is usable.
func (t *Tracker) SetStorageReady(ready bool) {
	t.mu.Lock()
	t.snap.StorageReady = ready
	t.mu.Unlock()
}

// SetSwitchReady sets whether the wireless switch accepted its last command.
func (t *Tracker) SetSwitchReady(ready bool) {
	t.mu.Lock()
	t.snap.SwitchReady = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
