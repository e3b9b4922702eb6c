package control

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/fan"
)

// CommandKind identifies a user command.
type CommandKind int

const (
	// CommandAdvanceSetpoint cycles the setpoint, like a press of the mode button.
	CommandAdvanceSetpoint CommandKind = iota
	// CommandSetLocalTime sets the wall clock from a local civil time.
	CommandSetLocalTime
)

func (k CommandKind) String() string {
	switch k {
	case CommandAdvanceSetpoint:
		return "advance"
	case CommandSetLocalTime:
		return "set_time"
	default:
		return "unknown"
	}
}

// Command is a request delivered to the control loop from the mode button,
// MQTT or HTTP.
type Command struct {
	Kind   CommandKind
	Local  civiltime.CivilTime // for CommandSetLocalTime
	Origin string              // "button", "mqtt", "http"
}

// Result describes the effect of an applied command.
type Result struct {
	Setpoint fan.Setpoint
	Local    civiltime.CivilTime
}

// ErrUnknownCommand is returned by ParseCommand for unrecognised input.
var ErrUnknownCommand = errors.New("unknown command")

// Accepted local time layouts.
var localLayouts = []string{
	"02.01.2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseLocalTime parses a wall clock time such as "30.03.2025 14:05" or
// "2025-03-30 14:05". No zone is applied.
func ParseLocalTime(s string) (civiltime.CivilTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return civiltime.FromTime(t), nil
		}
	}
	return civiltime.CivilTime{}, fmt.Errorf("invalid local time %q", s)
}

// ParseCommand parses a textual command: "advance" or "set_time <local>".
func ParseCommand(s, origin string) (Command, error) {
	s = strings.TrimSpace(s)
	name, arg, _ := strings.Cut(s, " ")
	switch strings.ToLower(name) {
	case "advance":
		return Command{Kind: CommandAdvanceSetpoint, Origin: origin}, nil
	case "set_time":
		local, err := ParseLocalTime(arg)
		if err != nil {
			return Command{}, err
		}
		return Command{Kind: CommandSetLocalTime, Local: local, Origin: origin}, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Apply executes cmd against the controller.
func (c *Controller) Apply(cmd Command) (Result, error) {
	switch cmd.Kind {
	case CommandAdvanceSetpoint:
		return Result{Setpoint: c.AdvanceSetpoint(), Local: c.clock.Local()}, nil
	case CommandSetLocalTime:
		if err := c.clock.SetLocal(cmd.Local); err != nil {
			return Result{Setpoint: c.actuator.Setpoint()}, fmt.Errorf("set local time: %w", err)
		}
		return Result{Setpoint: c.actuator.Setpoint(), Local: c.clock.Local()}, nil
	}
	return Result{}, fmt.Errorf("%w: kind %d", ErrUnknownCommand, int(cmd.Kind))
}
