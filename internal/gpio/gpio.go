// Package gpio drives the fan relay and the sensor power switch and reads the
// mode button. The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

// Switch drives a single digital output: the fan relay or the probe supply.
type Switch interface {
	// Set drives the output to the logical state on.
	Set(on bool) error

	// Close releases the line.
	Close() error
}

// Input reads a single digital input.
type Input interface {
	// Read returns the logical state. For the mode button true means pressed.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Default pin assignments (BCM numbering).
const (
	PinFan         = 17 // fan relay
	PinSensorPower = 27 // supply of both humidity probes
	PinButton      = 22 // mode button to ground
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"
