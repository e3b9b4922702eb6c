// Package button debounces the mode push button. It does no I/O; callers
// pass in each raw sample with its time.
package button

import "time"

// DefaultDebounce is long enough to ride out contact bounce on a cheap
// tactile switch and short enough to feel immediate.
const DefaultDebounce = 50 * time.Millisecond

// Event is a debounced edge.
type Event int

const (
	EventNone Event = iota
	EventPress
	EventRelease
)

func (e Event) String() string {
	switch e {
	case EventPress:
		return "PRESS"
	case EventRelease:
		return "RELEASE"
	default:
		return "NONE"
	}
}

// Debouncer turns raw button samples into press and release events.
type Debouncer struct {
	debounce time.Duration

	// Current stable (debounced) state
	stable bool
	// Pending state during debounce
	pending      bool
	hasPending   bool
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool

	presses int
}

// NewDebouncer creates a debouncer. A non-positive duration selects
// DefaultDebounce.
func NewDebouncer(debounce time.Duration) *Debouncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Debouncer{debounce: debounce}
}

// Process takes a new sample and returns the resulting event, if any.
// No events are returned until a baseline has been established, so a button
// held down at startup does not count as a press.
func (d *Debouncer) Process(pressed bool, now time.Time) Event {
	if !d.baselined {
		if !d.hasPending || d.pending != pressed {
			// Start observing, or restart if the level changed.
			d.setPending(pressed, now)
			return EventNone
		}
		if now.Sub(d.pendingSince) >= d.debounce {
			d.stable = pressed
			d.baselined = true
			d.hasPending = false
		}
		return EventNone
	}

	if pressed == d.stable {
		d.hasPending = false
		return EventNone
	}

	if !d.hasPending || d.pending != pressed {
		d.setPending(pressed, now)
		return EventNone
	}

	if now.Sub(d.pendingSince) < d.debounce {
		return EventNone
	}

	d.stable = pressed
	d.hasPending = false
	if pressed {
		d.presses++
		return EventPress
	}
	return EventRelease
}

func (d *Debouncer) setPending(pressed bool, now time.Time) {
	d.pending = pressed
	d.hasPending = true
	d.pendingSince = now
}

// IsBaselined returns whether the debouncer has established a baseline.
func (d *Debouncer) IsBaselined() bool {
	return d.baselined
}

// Pressed returns the stable state.
func (d *Debouncer) Pressed() bool {
	return d.stable
}

// Presses returns the number of press events since creation.
func (d *Debouncer) Presses() int {
	return d.presses
}
