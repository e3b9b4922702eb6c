//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSwitch is not available on non-Linux platforms.
type RealSwitch struct{}

// NewRealSwitch returns an error on non-Linux platforms.
func NewRealSwitch(chipName string, pin int, activeLow bool) (*RealSwitch, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealSwitch) Set(on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealSwitch) Close() error {
	return nil
}

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(chipName string, pin int) (*RealInput, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (i *RealInput) Read() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (i *RealInput) Close() error {
	return nil
}
