package sensor

import "time"

// Action is what the caller must do with the probe supply after Observe.
type Action int

const (
	ActionNone Action = iota
	ActionPowerOff
	ActionPowerOn
)

func (a Action) String() string {
	switch a {
	case ActionPowerOff:
		return "power_off"
	case ActionPowerOn:
		return "power_on"
	default:
		return "none"
	}
}

// PowerWatchdogConfig configures the power watchdog.
type PowerWatchdogConfig struct {
	Timeout time.Duration // without valid data from both probes this long, cut power
	OffFor  time.Duration // how long the supply stays off
}

// DefaultPowerWatchdogConfig returns 30 s timeout, 10 s off.
func DefaultPowerWatchdogConfig() PowerWatchdogConfig {
	return PowerWatchdogConfig{Timeout: 30 * time.Second, OffFor: 10 * time.Second}
}

// PowerWatchdog power-cycles the probes when either one has gone silent. A stuck
// DHT22 usually recovers only after losing its supply. Time enters as
// monotonic milliseconds. Not safe for concurrent use.
type PowerWatchdog struct {
	timeoutMs int64
	offMs     int64

	lastInner int64
	lastOuter int64

	resetting bool
	offSince  int64
	resets    uint64
}

// NewPowerWatchdog creates a watchdog that treats nowMs as the last time both
// probes delivered, giving them a full timeout to start up.
func NewPowerWatchdog(cfg PowerWatchdogConfig, nowMs int64) *PowerWatchdog {
	return &PowerWatchdog{
		timeoutMs: cfg.Timeout.Milliseconds(),
		offMs:     cfg.OffFor.Milliseconds(),
		lastInner: nowMs,
		lastOuter: nowMs,
	}
}

// Observe records whether each probe currently has valid data and returns
// the supply action due at nowMs.
func (w *PowerWatchdog) Observe(nowMs int64, innerValid, outerValid bool) Action {
	if w.resetting {
		if nowMs-w.offSince < w.offMs {
			return ActionNone
		}
		w.resetting = false
		w.lastInner = nowMs
		w.lastOuter = nowMs
		return ActionPowerOn
	}

	if innerValid {
		w.lastInner = nowMs
	}
	if outerValid {
		w.lastOuter = nowMs
	}
	if w.SilentFor(nowMs) > w.timeoutMs {
		w.resetting = true
		w.offSince = nowMs
		w.resets++
		return ActionPowerOff
	}
	return ActionNone
}

// SilentFor returns how long, in ms, the quieter probe has been without
// valid data.
func (w *PowerWatchdog) SilentFor(nowMs int64) int64 {
	return max(nowMs-w.lastInner, nowMs-w.lastOuter)
}

// Resetting reports whether the supply is currently cut.
func (w *PowerWatchdog) Resetting() bool {
	return w.resetting
}

// Resets returns how many power cycles have been started.
func (w *PowerWatchdog) Resets() uint64 {
	return w.resets
}
