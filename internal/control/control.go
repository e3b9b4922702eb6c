// Package control runs one ventilation control cycle: fuse the buffered
// probe samples, decide whether ventilating is useful, and advance the fan
// hysteresis. A Controller is owned by a single goroutine; other goroutines
// reach it only through Commands delivered by that goroutine.
package control

import (
	"time"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/fusion"
	"github.com/sweeney/dewpoint-fan/internal/policy"
)

// Config configures a Controller.
type Config struct {
	BufferSize      int
	Thresholds      policy.Thresholds
	Fan             fan.Config
	InitialSetpoint fan.Setpoint
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize:      fusion.DefaultCapacity,
		Thresholds:      policy.DefaultThresholds(),
		Fan:             fan.DefaultConfig(),
		InitialSetpoint: fan.SetpointAuto,
	}
}

// Output is the result of one Tick.
type Output struct {
	FanOn        bool
	Transitioned bool
	Verdict      policy.Verdict
	Inner        fusion.ProbeAverage
	Outer        fusion.ProbeAverage
}

// State is a point-in-time copy of everything the controller exposes to
// display, logging and publishing collaborators.
type State struct {
	Local           civiltime.CivilTime
	TimeEstablished bool
	TimeSource      civiltime.Source
	Inner           fusion.ProbeAverage
	Outer           fusion.ProbeAverage
	Verdict         policy.Verdict
	FanOn           bool
	FanState        fan.State
	Setpoint        fan.Setpoint
	RunSeconds      uint16
	RestSeconds     uint16
	Transitions     uint64
}

// Controller composes the probes, the policy thresholds, the fan actuator and
// the time authority. Not safe for concurrent use.
type Controller struct {
	inner      *fusion.Probe
	outer      *fusion.Probe
	thresholds policy.Thresholds
	actuator   *fan.Actuator
	clock      *civiltime.Authority

	lastMs  int64
	started bool

	innerAvg fusion.ProbeAverage
	outerAvg fusion.ProbeAverage
	verdict  policy.Verdict
}

// New creates a Controller.
func New(cfg Config, clock *civiltime.Authority) *Controller {
	c := &Controller{
		inner:      fusion.NewProbe(cfg.BufferSize),
		outer:      fusion.NewProbe(cfg.BufferSize),
		thresholds: cfg.Thresholds,
		actuator:   fan.NewActuator(cfg.Fan, cfg.InitialSetpoint),
		clock:      clock,
	}
	c.fuse()
	return c
}

// PushSamples buffers one reading per probe. Failed reads should be passed
// as fusion.BadSample().
func (c *Controller) PushSamples(inner, outer fusion.Sample) {
	c.inner.Push(inner)
	c.outer.Push(outer)
}

func (c *Controller) fuse() {
	c.innerAvg = c.inner.Average()
	c.outerAvg = c.outer.Average()
	c.verdict = policy.Decide(c.innerAvg, c.outerAvg, c.thresholds)
}

// Tick runs one control cycle at monotonic time nowMs. The first tick only
// establishes the reference point. A clock that goes backwards counts as no
// elapsed time.
func (c *Controller) Tick(nowMs int64) Output {
	var elapsed int64
	if c.started {
		elapsed = nowMs - c.lastMs
		if elapsed < 0 {
			elapsed = 0
		}
	}
	c.lastMs = nowMs
	c.started = true

	c.fuse()

	before := c.actuator.Transitions()
	on := c.actuator.Tick(elapsed, c.verdict.Useful())

	return Output{
		FanOn:        on,
		Transitioned: c.actuator.Transitions() != before,
		Verdict:      c.verdict,
		Inner:        c.innerAvg,
		Outer:        c.outerAvg,
	}
}

// AdvanceSetpoint cycles the user setpoint.
func (c *Controller) AdvanceSetpoint() fan.Setpoint {
	return c.actuator.IncrementSetpoint()
}

// FanOn reports the current actuation output.
func (c *Controller) FanOn() bool {
	return c.actuator.On()
}

// Verdict returns the verdict of the last cycle.
func (c *Controller) Verdict() policy.Verdict {
	return c.verdict
}

// Averages returns the fused measurements of the last cycle.
func (c *Controller) Averages() (inner, outer fusion.ProbeAverage) {
	return c.innerAvg, c.outerAvg
}

// Clock returns the time authority.
func (c *Controller) Clock() *civiltime.Authority {
	return c.clock
}

// State returns a copy of the current controller state.
func (c *Controller) State() State {
	return State{
		Local:           c.clock.Local(),
		TimeEstablished: c.clock.Established(),
		TimeSource:      c.clock.Source(),
		Inner:           c.innerAvg,
		Outer:           c.outerAvg,
		Verdict:         c.verdict,
		FanOn:           c.actuator.On(),
		FanState:        c.actuator.State(),
		Setpoint:        c.actuator.Setpoint(),
		RunSeconds:      c.actuator.RunSeconds(),
		RestSeconds:     c.actuator.RestSeconds(),
		Transitions:     c.actuator.Transitions(),
	}
}

// MonotonicMillis returns a millisecond counter that starts at zero at start
// and only moves forward.
func MonotonicMillis(start time.Time) func() int64 {
	return func() int64 {
		return time.Since(start).Milliseconds()
	}
}
