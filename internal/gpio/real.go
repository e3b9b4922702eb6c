//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "dewpoint-fan"

// RealSwitch drives an output line on actual hardware.
type RealSwitch struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealSwitch requests pin on chip as an output, initially logical off.
// With activeLow the physical level is inverted, for relay boards that
// switch on a low input.
func NewRealSwitch(chipName string, pin int, activeLow bool) (*RealSwitch, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(pin, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealSwitch{chip: chip, line: line, activeLow: activeLow}, nil
}

// Set drives the line to the logical state on.
func (o *RealSwitch) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// restBias is the pull that holds a released output at its off level. An
// active-low relay is off when its input is high.
func restBias(activeLow bool) gpiocdev.LineBias {
	if activeLow {
		return gpiocdev.WithPullUp
	}
	return gpiocdev.WithPullDown
}

// Close drives the output off and returns the pin to an input biased to the
// off level, so the relay stays released while the daemon is not running.
func (o *RealSwitch) Close() error {
	var errs []error

	if o.line != nil {
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pin off: %w", err))
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, restBias(o.activeLow)); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealInput reads a push button wired between the pin and ground.
type RealInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealInput requests pin on chip as an input with pull-up.
func NewRealInput(chipName string, pin int) (*RealInput, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}

	return &RealInput{chip: chip, line: line}, nil
}

// Read reports whether the button is pressed.
// Inverts raw GPIO: the pull-up holds the line at 1 until the button grounds it.
func (i *RealInput) Read() (bool, error) {
	raw, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin: %w", err)
	}
	return raw == 0, nil
}

// Close restores the pin to input with pull-down before releasing it.
func (i *RealInput) Close() error {
	var errs []error

	if i.line != nil {
		if err := i.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := i.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if i.chip != nil {
		if err := i.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
