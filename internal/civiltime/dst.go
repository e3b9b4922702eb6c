package civiltime

// Rule decides whether daylight saving time applies at a given date and hour.
// Conversion and rollover arithmetic never depend on a concrete rule.
type Rule interface {
	IsDST(year, month, day, hour int) bool
}

// CentralEuropean is the EU summer-time rule as observed in CET/CEST: DST
// starts on the last Sunday of March when the clock reaches 02:00 and ends on
// the last Sunday of October at 03:00.
type CentralEuropean struct{}

// IsDST implements Rule.
func (CentralEuropean) IsDST(year, month, day, hour int) bool {
	switch {
	case month < 3 || month > 10:
		return false
	case month > 3 && month < 10:
		return true
	}

	ls := LastSunday(year, month)
	if month == 3 {
		if day > ls {
			return true
		}
		if day < ls {
			return false
		}
		return hour >= 2
	}

	// October
	if day < ls {
		return true
	}
	if day > ls {
		return false
	}
	return hour < 3
}

// NoDST is a Rule for locations that stay on standard time all year.
type NoDST struct{}

// IsDST implements Rule.
func (NoDST) IsDST(int, int, int, int) bool { return false }

// DayOfWeek returns the Gregorian day of the week, 0 = Sunday ... 6 = Saturday,
// using Zeller's congruence.
func DayOfWeek(year, month, day int) int {
	y, m := year, month
	if m < 3 {
		m += 12
		y--
	}
	k := y % 100
	j := y / 100
	h := (day + (13*(m+1))/5 + k + k/4 + j/4 + 5*j) % 7
	// Zeller yields 0 = Saturday.
	return (h + 6) % 7
}

// LastSunday returns the day of the month of the last Sunday in month.
func LastSunday(year, month int) int {
	last := DaysInMonth(year, month)
	return last - DayOfWeek(year, month, last)
}
