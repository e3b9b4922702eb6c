package civiltime

import (
	"errors"
	"time"
)

// MinReliableYear is the earliest year a clock may report and still be
// considered set. Anything earlier means the board booted without RTC or NTP.
const MinReliableYear = 2024

// SystemClock presents the host clock as a base-time hardware clock at a
// fixed standard offset from UTC (one hour for CET). Set never touches the
// host clock; it records a correction applied to every later reading.
type SystemClock struct {
	offset time.Duration
	adjust time.Duration
	now    func() time.Time
}

// NewSystemClock returns a SystemClock for the given standard offset.
func NewSystemClock(offset time.Duration) *SystemClock {
	return &SystemClock{offset: offset, now: time.Now}
}

func (c *SystemClock) instant() time.Time {
	return c.now().UTC().Add(c.offset + c.adjust)
}

// Now implements HardwareClock.
func (c *SystemClock) Now() CivilTime {
	return FromTime(c.instant())
}

// Set implements HardwareClock.
func (c *SystemClock) Set(base CivilTime) error {
	if !base.Valid() {
		return errors.New("invalid base time")
	}
	want := base.toTime()
	c.adjust = want.Sub(c.now().UTC().Add(c.offset))
	return nil
}

// Valid implements HardwareClock.
func (c *SystemClock) Valid() bool {
	return c.instant().Year() >= MinReliableYear
}

// FromTime copies the wall-clock fields of t.
func FromTime(t time.Time) CivilTime {
	return CivilTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

func (c CivilTime) toTime() time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
}
