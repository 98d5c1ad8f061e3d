// Package serial opens the link to a servo controller
package serial

import (
	"errors"
	"io"
	"time"
)

// Port is a byte stream to the controller. The native implementation uses
// github.com/tarm/serial; tests use an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush drops anything the driver still buffers
	Flush() error
}

// Config holds serial port settings
type Config struct {
	// Device path, e.g. /dev/ttyACM0 or COM3
	Device string

	// Baud rate; USB CDC links ignore it
	Baud int

	// ReadTimeout bounds each Read so the reader can notice Close
	ReadTimeout time.Duration
}

var ErrNoDevice = errors.New("serial: no device given")

// DefaultConfig returns the settings the firmware UART build expects
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks the settings before opening
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return errors.New("serial: baud must be positive")
	}
	return nil
}
