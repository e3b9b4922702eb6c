// Package fan implements the fan hysteresis state machine. It turns the
// ventilation verdict and the user's setpoint into a run/stop decision while
// enforcing minimum rest and maximum run times so a cheap fan motor is never
// short-cycled or run continuously.
//
// This package has no I/O and never reads the wall clock: time only enters
// through the elapsed milliseconds passed to Tick.
package fan

import (
	"strings"
	"time"
)

// Setpoint is the user-selected mode.
type Setpoint int

const (
	SetpointOff Setpoint = iota
	SetpointAuto
	SetpointOn
)

func (s Setpoint) String() string {
	switch s {
	case SetpointOff:
		return "OFF"
	case SetpointAuto:
		return "AUTO"
	case SetpointOn:
		return "ON"
	default:
		return "UNKNOWN"
	}
}

// Next returns the setpoint that follows s: OFF → AUTO → ON → OFF.
func (s Setpoint) Next() Setpoint {
	switch s {
	case SetpointOff:
		return SetpointAuto
	case SetpointAuto:
		return SetpointOn
	default:
		return SetpointOff
	}
}

// ParseSetpoint parses "off", "auto" or "on" (any case).
func ParseSetpoint(s string) (Setpoint, bool) {
	switch strings.ToLower(s) {
	case "off":
		return SetpointOff, true
	case "auto":
		return SetpointAuto, true
	case "on":
		return SetpointOn, true
	}
	return SetpointAuto, false
}

// State is the actuator state.
type State int

const (
	StateInit State = iota
	StateOff
	StateOn
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateOn:
		return "ON"
	default:
		return "INIT"
	}
}

// CounterCeiling is where the run and rest counters saturate, in seconds.
// It stays 100 s below the 16-bit maximum.
const CounterCeiling = 65435

const ceilingMs = int64(CounterCeiling) * 1000

// Config holds the dwell limits.
type Config struct {
	MinRun  time.Duration // a run is ended once it reaches this length
	MinRest time.Duration // the fan must rest at least this long before starting
}

// DefaultConfig returns 16 minutes run, 10 minutes rest.
func DefaultConfig() Config {
	return Config{
		MinRun:  16 * time.Minute,
		MinRest: 10 * time.Minute,
	}
}

// Actuator is the fan hysteresis state machine. The zero value is in
// StateInit and resolves to StateOff on its first tick.
// Not safe for concurrent use.
type Actuator struct {
	minRunMs    int64
	minRestMs   int64
	state       State
	setpoint    Setpoint
	runMs       int64
	restMs      int64
	transitions uint64
}

// NewActuator returns an actuator that is OFF with zero counters.
func NewActuator(cfg Config, setpoint Setpoint) *Actuator {
	a := &Actuator{
		minRunMs:  clampMs(cfg.MinRun),
		minRestMs: clampMs(cfg.MinRest),
		setpoint:  setpoint,
	}
	a.reset()
	return a
}

func clampMs(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > ceilingMs {
		return ceilingMs
	}
	return ms
}

// saturatingAdd adds d (clamped to >= 0) to v without exceeding ceilingMs.
func saturatingAdd(v, d int64) int64 {
	if d < 0 {
		d = 0
	}
	if v >= ceilingMs-d {
		return ceilingMs
	}
	return v + d
}

func (a *Actuator) reset() {
	a.state = StateOff
	a.runMs = 0
	a.restMs = 0
}

func (a *Actuator) transition(to State) {
	a.state = to
	a.runMs = 0
	a.restMs = 0
	a.transitions++
}

// Tick advances the state machine by elapsedMs and reports whether the fan
// should run now. Negative elapsed values count as zero. useful is the
// ventilation verdict reduced to a boolean; it only gates starting the fan.
func (a *Actuator) Tick(elapsedMs int64, useful bool) bool {
	switch a.state {
	case StateOff:
		a.restMs = saturatingAdd(a.restMs, elapsedMs)
		if a.restMs >= a.minRestMs && a.wantsRun(useful) {
			a.transition(StateOn)
		}
	case StateOn:
		a.runMs = saturatingAdd(a.runMs, elapsedMs)
		switch {
		case a.setpoint == SetpointOff:
			a.transition(StateOff)
		case a.runMs >= a.minRunMs:
			// Forced rest, even if ventilation is still useful.
			a.transition(StateOff)
		}
	default:
		a.reset()
	}
	return a.state == StateOn
}

func (a *Actuator) wantsRun(useful bool) bool {
	return a.setpoint == SetpointOn || (a.setpoint == SetpointAuto && useful)
}

// IncrementSetpoint cycles OFF → AUTO → ON → OFF and expires the current
// dwell time so the next tick acts on the new setpoint without waiting out
// the hysteresis window.
func (a *Actuator) IncrementSetpoint() Setpoint {
	a.setpoint = a.setpoint.Next()
	switch a.state {
	case StateOff:
		a.restMs = max(a.restMs, min(a.minRestMs+1, ceilingMs))
	case StateOn:
		a.runMs = max(a.runMs, min(a.minRunMs+1, ceilingMs))
	}
	return a.setpoint
}

// On reports whether the fan is running.
func (a *Actuator) On() bool {
	return a.state == StateOn
}

// State returns the current state.
func (a *Actuator) State() State {
	return a.state
}

// Setpoint returns the user setpoint.
func (a *Actuator) Setpoint() Setpoint {
	return a.setpoint
}

// RunSeconds returns the seconds spent in the current run.
func (a *Actuator) RunSeconds() uint16 {
	return uint16(a.runMs / 1000)
}

// RestSeconds returns the seconds spent in the current rest.
func (a *Actuator) RestSeconds() uint16 {
	return uint16(a.restMs / 1000)
}

// Transitions returns the number of ON/OFF transitions since creation.
func (a *Actuator) Transitions() uint64 {
	return a.transitions
}
