// Package sensor reads the indoor and outdoor temperature/humidity probes
// and power-cycles them when they stop delivering data.
package sensor

import (
	"errors"

	"github.com/sweeney/dewpoint-fan/internal/fusion"
)

// Reader reads one temperature/humidity sample from a probe.
type Reader interface {
	// Read returns a sample in °C and %RH. A failed conversion returns an
	// error; the caller records it as a bad sample.
	Read() (fusion.Sample, error)
}

// ErrNoSample is returned by FakeReader when it has nothing scripted.
var ErrNoSample = errors.New("sensor: no sample")

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	// Samples are returned in order. The last one repeats once exhausted.
	Samples []fusion.Sample

	// ReadError, if set, is returned by Read instead of a sample.
	ReadError error

	// Reads counts Read calls.
	Reads int

	index int
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...fusion.Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (fusion.Sample, error) {
	f.Reads++
	if f.ReadError != nil {
		return fusion.BadSample(), f.ReadError
	}
	if len(f.Samples) == 0 {
		return fusion.BadSample(), ErrNoSample
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// ReadOrBad reads r and maps any failure to fusion.BadSample.
func ReadOrBad(r Reader) (fusion.Sample, error) {
	s, err := r.Read()
	if err != nil {
		return fusion.BadSample(), err
	}
	return s, nil
}
