package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/dewpoint-fan/internal/fusion"
)

// Attribute files exposed by the Linux dht11 IIO driver (which also serves
// DHT22/AM2302). Values are in milli-degrees Celsius and milli-percent.
const (
	tempAttr     = "in_temp_input"
	humidityAttr = "in_humidityrelative_input"
)

// IIOReader reads a DHT-family probe through the kernel IIO sysfs interface,
// for example /sys/bus/iio/devices/iio:device0.
type IIOReader struct {
	dir string
}

// NewIIOReader returns a reader for the device directory dir. It fails if
// the directory does not expose the expected attributes.
func NewIIOReader(dir string) (*IIOReader, error) {
	for _, attr := range []string{tempAttr, humidityAttr} {
		if _, err := os.Stat(filepath.Join(dir, attr)); err != nil {
			return nil, fmt.Errorf("iio device %s: %w", dir, err)
		}
	}
	return &IIOReader{dir: dir}, nil
}

// Read implements Reader. The driver returns EIO when a conversion fails,
// which is common on these probes.
func (r *IIOReader) Read() (fusion.Sample, error) {
	temp, err := r.readMilli(tempAttr)
	if err != nil {
		return fusion.BadSample(), err
	}
	hum, err := r.readMilli(humidityAttr)
	if err != nil {
		return fusion.BadSample(), err
	}
	return fusion.Sample{Temperature: temp, Humidity: hum}, nil
}

func (r *IIOReader) readMilli(attr string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(r.dir, attr))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", attr, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return v / 1000, nil
}

// Dir returns the device directory.
func (r *IIOReader) Dir() string {
	return r.dir
}
