// Package civiltime derives DST-correct local time from a clock that is kept
// in standard ("base") time. It has no dependency on the host timezone
// database: one fixed DST rule is modeled, behind the Rule interface.
package civiltime

import "fmt"

// CivilTime is a calendar date and wall-clock time without zone information.
// The same shape carries both base time (always standard time, the only form
// ever written to the hardware clock) and local time (base with DST applied).
type CivilTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Date is a convenience constructor.
func Date(year, month, day, hour, minute, second int) CivilTime {
	return CivilTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second}
}

// IsLeapYear reports whether year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days in month (1-12) of year.
func DaysInMonth(year, month int) int {
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return monthDays[month-1]
}

// Valid reports whether all fields are in range.
func (c CivilTime) Valid() bool {
	if c.Month < 1 || c.Month > 12 {
		return false
	}
	if c.Day < 1 || c.Day > DaysInMonth(c.Year, c.Month) {
		return false
	}
	return c.Hour >= 0 && c.Hour < 24 &&
		c.Minute >= 0 && c.Minute < 60 &&
		c.Second >= 0 && c.Second < 60
}

// AddHour returns c advanced by one hour, rolling over day, month and year.
func (c CivilTime) AddHour() CivilTime {
	c.Hour++
	if c.Hour < 24 {
		return c
	}
	c.Hour = 0
	c.Day++
	if c.Day <= DaysInMonth(c.Year, c.Month) {
		return c
	}
	c.Day = 1
	c.Month++
	if c.Month > 12 {
		c.Month = 1
		c.Year++
	}
	return c
}

// SubHour returns c moved back by one hour, rolling over day, month and year.
func (c CivilTime) SubHour() CivilTime {
	if c.Hour > 0 {
		c.Hour--
		return c
	}
	c.Hour = 23
	if c.Day > 1 {
		c.Day--
		return c
	}
	if c.Month > 1 {
		c.Month--
	} else {
		c.Month = 12
		c.Year--
	}
	c.Day = DaysInMonth(c.Year, c.Month)
	return c
}

// NewerThan reports whether c is strictly later than o, comparing year,
// month, day, hour and minute in that order. Seconds are ignored, so two
// values in the same minute are never newer than each other.
func (c CivilTime) NewerThan(o CivilTime) bool {
	a := [5]int{c.Year, c.Month, c.Day, c.Hour, c.Minute}
	b := [5]int{o.Year, o.Month, o.Day, o.Hour, o.Minute}
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// String formats c as "YYYY-MM-DD hh:mm:ss", the logging timestamp format.
func (c CivilTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}

// DisplayDate formats the date as "DD.MM.YYYY".
func (c CivilTime) DisplayDate() string {
	return fmt.Sprintf("%02d.%02d.%04d", c.Day, c.Month, c.Year)
}

// DisplayTime formats the time of day as "hh:mm:ss".
func (c CivilTime) DisplayTime() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// MonthKey returns "YYYY-MM", used to name monthly log files.
func (c CivilTime) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", c.Year, c.Month)
}
