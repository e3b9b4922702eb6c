// Package policy decides whether ventilating is physically useful given the
// fused indoor and outdoor measurements.
package policy

import "github.com/sweeney/dewpoint-fan/internal/fusion"

// Verdict is the outcome of one ventilation decision.
type Verdict int

const (
	Useful Verdict = iota
	NoData
	NoDataIndoor
	NoDataOutdoor
	TooColdInside
	TooColdOutside
	InsideDryEnough
	OutsideNotDryEnough
)

var verdictNames = [...]string{
	Useful:              "USEFUL",
	NoData:              "NO_DATA",
	NoDataIndoor:        "NO_DATA_INDOOR",
	NoDataOutdoor:       "NO_DATA_OUTDOOR",
	TooColdInside:       "TOO_COLD_INSIDE",
	TooColdOutside:      "TOO_COLD_OUTSIDE",
	InsideDryEnough:     "INSIDE_DRY_ENOUGH",
	OutsideNotDryEnough: "OUTSIDE_NOT_DRY_ENOUGH",
}

var verdictText = [...]string{
	Useful:              "Ventilation is useful",
	NoData:              "No valid data",
	NoDataIndoor:        "No valid data from indoor sensor",
	NoDataOutdoor:       "No valid data from outdoor sensor",
	TooColdInside:       "Too cold inside",
	TooColdOutside:      "Too cold outside",
	InsideDryEnough:     "Inside is dry enough",
	OutsideNotDryEnough: "Outside is not drier",
}

func (v Verdict) String() string {
	if v < 0 || int(v) >= len(verdictNames) {
		return "UNKNOWN"
	}
	return verdictNames[v]
}

// Description returns a short human-readable explanation.
func (v Verdict) Description() string {
	if v < 0 || int(v) >= len(verdictText) {
		return "Unknown"
	}
	return verdictText[v]
}

// Useful reports whether the verdict recommends ventilation.
func (v Verdict) Useful() bool {
	return v == Useful
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Thresholds are the limits the decision is evaluated against.
type Thresholds struct {
	MinInnerTemp     float64 // °C
	MinOuterTemp     float64 // °C
	MinInnerDewPoint float64 // °C
	MinDewPointGap   float64 // K
}

// DefaultThresholds returns the reference limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinInnerTemp:     10,
		MinOuterTemp:     -2,
		MinInnerDewPoint: 5,
		MinDewPointGap:   3,
	}
}

// Decide evaluates the rules in priority order; the first match wins.
func Decide(inner, outer fusion.ProbeAverage, th Thresholds) Verdict {
	switch {
	case inner.ValidCount == 0 && outer.ValidCount == 0:
		return NoData
	case inner.ValidCount == 0:
		return NoDataIndoor
	case outer.ValidCount == 0:
		return NoDataOutdoor
	case inner.Temperature < th.MinInnerTemp:
		return TooColdInside
	case outer.Temperature < th.MinOuterTemp:
		return TooColdOutside
	case inner.DewPoint < th.MinInnerDewPoint:
		return InsideDryEnough
	case inner.DewPoint-outer.DewPoint > th.MinDewPointGap:
		return Useful
	default:
		return OutsideNotDryEnough
	}
}
