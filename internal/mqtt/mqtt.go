// Package mqtt publishes controller status and system events, drives a
// wireless fan switch and receives remote commands.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultTopicPrefix roots every topic of this daemon.
const DefaultTopicPrefix = "home/ventilation/dewpoint-fan"

// Topics are the topics the daemon publishes to and subscribes on.
type Topics struct {
	Status  string // retained status snapshot
	System  string // lifecycle events and the last will
	Command string // inbound commands
}

// NewTopics derives the topic set from prefix. An empty prefix selects
// DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Status:  prefix + "/status",
		System:  prefix + "/system",
		Command: prefix + "/command",
	}
}

// Publisher publishes to MQTT.
type Publisher interface {
	// PublishStatus sends the formatted status snapshot (retained).
	// Returns error if publishing fails (should not crash the process).
	PublishStatus(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishSwitch commands the wireless fan switch.
	PublishSwitch(on bool) error

	// Close disconnects from the broker.
	Close() error
}

// Discard is a Publisher that drops everything. It stands in when MQTT is
// disabled or the broker could not be reached at startup.
var Discard Publisher = discardPublisher{}

type discardPublisher struct{}

func (discardPublisher) PublishStatus([]byte) error      { return nil }
func (discardPublisher) PublishSystem(SystemEvent) error { return nil }
func (discardPublisher) PublishSwitch(bool) error        { return nil }
func (discardPublisher) Close() error                    { return nil }

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// FormatWillPayload creates the last-will payload the broker publishes when
// the daemon disappears without a clean disconnect.
func FormatWillPayload(bootID string, at time.Time) []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: at.UTC().Format(time.RFC3339),
			Event:     "OFFLINE",
			Reason:    "MQTT_DISCONNECT",
			BootID:    bootID,
		},
	})
	return data
}

// SwitchPayloads are the messages understood by the wireless switch.
type SwitchPayloads struct {
	On  string
	Off string
}

// DefaultSwitchPayloads suits Zigbee2MQTT and Tasmota plugs.
func DefaultSwitchPayloads() SwitchPayloads {
	return SwitchPayloads{On: "ON", Off: "OFF"}
}

// For returns the payload for state on.
func (p SwitchPayloads) For(on bool) string {
	if on {
		return p.On
	}
	return p.Off
}

// DefaultSwitchRefresh is how often the switch state is re-sent while it
// does not change. A plug that missed a message or rebooted converges.
const DefaultSwitchRefresh = 20 * time.Second

// SwitchRefresher decides when the switch command must be (re)sent. Time
// enters as monotonic milliseconds. Not safe for concurrent use.
type SwitchRefresher struct {
	intervalMs int64
	sent       bool
	last       bool
	lastMs     int64
}

// NewSwitchRefresher creates a refresher. A non-positive interval selects
// DefaultSwitchRefresh.
func NewSwitchRefresher(interval time.Duration) *SwitchRefresher {
	if interval <= 0 {
		interval = DefaultSwitchRefresh
	}
	return &SwitchRefresher{intervalMs: interval.Milliseconds()}
}

// Due reports whether on must be sent at nowMs: nothing sent yet, a changed
// state, or the refresh interval elapsed.
func (r *SwitchRefresher) Due(nowMs int64, on bool) bool {
	return !r.sent || on != r.last || nowMs-r.lastMs >= r.intervalMs
}

// Sent records a successful send.
func (r *SwitchRefresher) Sent(nowMs int64, on bool) {
	r.sent = true
	r.last = on
	r.lastMs = nowMs
}
