package civiltime

import "fmt"

// HardwareClock is a clock that keeps base (standard) time.
type HardwareClock interface {
	// Now returns the current base time.
	Now() CivilTime
	// Set writes a new base time.
	Set(base CivilTime) error
	// Valid reports whether the clock holds a trustworthy time.
	Valid() bool
}

// Candidate is one possible source of the current time at boot.
type Candidate struct {
	Valid bool
	Time  CivilTime
}

// Source identifies where the established time came from.
type Source int

const (
	SourceNone Source = iota
	SourceHardware
	SourceCompiled
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceHardware:
		return "hardware"
	case SourceCompiled:
		return "compiled"
	case SourceManual:
		return "manual"
	default:
		return "none"
	}
}

// Authority owns the hardware clock and converts between base and local time.
// Not safe for concurrent use.
type Authority struct {
	clock       HardwareClock
	rule        Rule
	established bool
	source      Source
}

// NewAuthority creates an Authority over clock. A nil rule selects
// CentralEuropean.
func NewAuthority(clock HardwareClock, rule Rule) *Authority {
	if rule == nil {
		rule = CentralEuropean{}
	}
	return &Authority{clock: clock, rule: rule}
}

// IsDST reports whether DST applies to the given time's date and hour.
func (a *Authority) IsDST(t CivilTime) bool {
	return a.rule.IsDST(t.Year, t.Month, t.Day, t.Hour)
}

// ToLocal converts a base time to local time.
func (a *Authority) ToLocal(base CivilTime) CivilTime {
	if a.IsDST(base) {
		return base.AddHour()
	}
	return base
}

// FromLocal converts a local time to base time.
func (a *Authority) FromLocal(local CivilTime) CivilTime {
	if a.IsDST(local) {
		return local.SubHour()
	}
	return local
}

// Base returns the hardware clock's current base time.
func (a *Authority) Base() CivilTime {
	return a.clock.Now()
}

// Local returns the current local time.
func (a *Authority) Local() CivilTime {
	return a.ToLocal(a.clock.Now())
}

// HardwareCandidate returns the hardware clock's current value as a boot
// candidate.
func (a *Authority) HardwareCandidate() Candidate {
	return Candidate{Valid: a.clock.Valid(), Time: a.clock.Now()}
}

// SetLocal writes local time to the hardware clock (converted to base time)
// and marks the time as established.
func (a *Authority) SetLocal(local CivilTime) error {
	if !local.Valid() {
		return fmt.Errorf("invalid local time %s", local)
	}
	if err := a.clock.Set(a.FromLocal(local)); err != nil {
		return fmt.Errorf("set hardware clock: %w", err)
	}
	a.established = true
	a.source = SourceManual
	return nil
}

// ResolveAtBoot decides between the hardware clock value and a compiled-in
// fallback (which is local time). When both are valid the fallback wins only
// if it is strictly newer to the minute. It returns false when neither source
// is valid; the error is non-nil only if writing the hardware clock failed.
func (a *Authority) ResolveAtBoot(hardware, compiled Candidate) (bool, error) {
	a.established = false
	a.source = SourceNone

	useCompiled := false
	switch {
	case hardware.Valid && compiled.Valid:
		useCompiled = compiled.Time.NewerThan(hardware.Time)
	case hardware.Valid:
	case compiled.Valid:
		useCompiled = true
	default:
		return false, nil
	}

	if useCompiled {
		if err := a.clock.Set(a.FromLocal(compiled.Time)); err != nil {
			return false, fmt.Errorf("write compiled time to clock: %w", err)
		}
		a.source = SourceCompiled
	} else {
		a.source = SourceHardware
	}
	a.established = true
	return true, nil
}

// Established reports whether a trustworthy time is known. When false, every
// timestamp derived from the clock must be treated as unreliable.
func (a *Authority) Established() bool {
	return a.established
}

// Source reports where the established time came from.
func (a *Authority) Source() Source {
	return a.source
}
