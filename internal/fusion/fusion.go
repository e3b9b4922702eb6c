// Package fusion filters and averages periodic humidity/temperature samples
// per probe. It has no I/O; samples are pushed in by the caller.
package fusion

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultCapacity is the number of samples kept per probe.
	DefaultCapacity = 8

	// Sentinel is the magnitude above which a reading is treated as garbage.
	Sentinel = 500.0
)

// Sample is a single probe reading. NaN values mark a failed read.
type Sample struct {
	Temperature float64
	Humidity    float64
}

// BadSample returns the sample pushed when a probe read fails.
func BadSample() Sample {
	return Sample{Temperature: math.NaN(), Humidity: math.NaN()}
}

// Valid reports whether both values are numbers within the sentinel bound.
func (s Sample) Valid() bool {
	return usable(s.Temperature) && usable(s.Humidity)
}

func usable(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= Sentinel
}

// ProbeAverage is the filtered mean of a probe's buffered samples.
// ValidCount 0 means there is currently no trustworthy data.
type ProbeAverage struct {
	Temperature float64
	Humidity    float64
	DewPoint    float64
	ValidCount  int
}

// Valid reports whether the average is backed by at least one sample.
func (a ProbeAverage) Valid() bool {
	return a.ValidCount > 0
}

// Probe holds a fixed-capacity ring of samples for one sensor.
// Not safe for concurrent use.
type Probe struct {
	buf      []Sample
	capacity int
	head     int // next write position
	count    int
}

// NewProbe creates a probe buffer. Capacities below 1 select DefaultCapacity.
func NewProbe(capacity int) *Probe {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Probe{
		buf:      make([]Sample, capacity),
		capacity: capacity,
	}
}

// Push appends a sample, evicting the oldest one when the buffer is full.
func (p *Probe) Push(s Sample) {
	p.buf[p.head] = s
	p.head = (p.head + 1) % p.capacity
	if p.count < p.capacity {
		p.count++
	}
}

// Len returns the number of buffered samples.
func (p *Probe) Len() int {
	return p.count
}

// Cap returns the buffer capacity.
func (p *Probe) Cap() int {
	return p.capacity
}

// Samples returns the buffered samples, oldest first.
func (p *Probe) Samples() []Sample {
	out := make([]Sample, p.count)
	start := (p.head - p.count + p.capacity) % p.capacity
	for i := 0; i < p.count; i++ {
		out[i] = p.buf[(start+i)%p.capacity]
	}
	return out
}

// Reset drops all buffered samples.
func (p *Probe) Reset() {
	p.head = 0
	p.count = 0
}

// Average filters the buffered samples and returns their mean. The dew point
// is computed once from the mean temperature and humidity, never averaged
// per sample.
func (p *Probe) Average() ProbeAverage {
	temps := make([]float64, 0, p.count)
	hums := make([]float64, 0, p.count)
	for _, s := range p.Samples() {
		if !s.Valid() {
			continue
		}
		temps = append(temps, s.Temperature)
		hums = append(hums, s.Humidity)
	}

	if len(temps) == 0 {
		return ProbeAverage{DewPoint: math.NaN()}
	}

	avg := ProbeAverage{
		Temperature: stat.Mean(temps, nil),
		Humidity:    stat.Mean(hums, nil),
		ValidCount:  len(temps),
	}
	avg.DewPoint = DewPoint(avg.Temperature, avg.Humidity)
	return avg
}

// Magnus coefficients (Sonntag 1990), valid for -45..60 °C over water.
const (
	magnusA = 17.62
	magnusB = 243.12
)

// DewPoint returns the dew point in °C for a temperature in °C and a relative
// humidity in percent, using the Magnus approximation. Humidity at or below
// zero has no dew point and yields NaN.
func DewPoint(temperature, humidity float64) float64 {
	if humidity <= 0 {
		return math.NaN()
	}
	gamma := math.Log(humidity/100) + magnusA*temperature/(magnusB+temperature)
	return magnusB * gamma / (magnusA - gamma)
}
