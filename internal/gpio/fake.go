package gpio

import "errors"

// FakeSwitch is a test double that records every Set.
type FakeSwitch struct {
	// History holds every value passed to Set, in order.
	History []bool

	// SetError, if set, is returned by Set and the value is not recorded.
	SetError error

	// Closed tracks if Close was called
	Closed bool

	// CloseError, if set, is returned by Close.
	CloseError error
}

// Set records on.
func (f *FakeSwitch) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, on)
	return nil
}

// On returns the last value set, false if none.
func (f *FakeSwitch) On() bool {
	if len(f.History) == 0 {
		return false
	}
	return f.History[len(f.History)-1]
}

// Close marks the output as closed.
func (f *FakeSwitch) Close() error {
	f.Closed = true
	return f.CloseError
}

// FakeInput is a test double that returns scripted input values.
type FakeInput struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples []bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeInput) Reset() {
	f.index = 0
	f.Closed = false
}
