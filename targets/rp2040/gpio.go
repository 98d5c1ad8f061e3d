//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"pinguino/core"
)

// maxGPIO covers GPIO0-47 (RP2350B); the RP2040 stops at GPIO29
const maxGPIO = 48

var errPinRange = errors.New("gpio out of range")

// RPGPIODriver implements core.GPIODriver on the SIO outputs
type RPGPIODriver struct {
	configured [maxGPIO]bool
}

// NewRPGPIODriver creates a driver with every pin unconfigured
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

// ConfigureOutput makes the pin a driven output and pulls it low
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= maxGPIO {
		return errPinRange
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	d.configured[pin] = true
	return nil
}

// SetPin drives a configured output. It runs from the frame timer so it
// does no lookups beyond the array index.
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if pin >= maxGPIO || !d.configured[pin] {
		return errPinRange
	}
	machine.Pin(pin).Set(value)
	return nil
}
