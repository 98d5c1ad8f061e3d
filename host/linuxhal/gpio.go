// Package linuxhal runs the servo engine on a Linux single board computer.
// Lines are driven through periph.io and frames are timed by the OS clock,
// so pulse edges carry scheduler jitter.
package linuxhal

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"pinguino/core"
)

// PinLookup resolves a header name to a periph pin
type PinLookup func(name string) gpio.PinIO

// GPIO implements core.GPIODriver on periph.io pins. Pin n is looked up
// as "GPIOn".
type GPIO struct {
	lookup PinLookup

	mu   sync.Mutex
	pins map[core.GPIOPin]gpio.PinIO
}

var hostOnce sync.Once
var hostErr error

// NewGPIO initialises the periph host drivers once and returns a driver
// resolving pins through gpioreg.
func NewGPIO() (*GPIO, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("periph host init: %w", hostErr)
	}
	return NewGPIOWithLookup(gpioreg.ByName), nil
}

// NewGPIOWithLookup returns a driver resolving pins with lookup
func NewGPIOWithLookup(lookup PinLookup) *GPIO {
	return &GPIO{lookup: lookup, pins: make(map[core.GPIOPin]gpio.PinIO)}
}

// PinName is the periph name used for a core pin number
func PinName(pin core.GPIOPin) string {
	return fmt.Sprintf("GPIO%d", pin)
}

// ConfigureOutput resolves the pin and drives it low
func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	p := g.lookup(PinName(pin))
	if p == nil {
		return fmt.Errorf("%s: no such pin", PinName(pin))
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("%s: %w", PinName(pin), err)
	}
	g.mu.Lock()
	g.pins[pin] = p
	g.mu.Unlock()
	return nil
}

// SetPin drives a configured pin
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: not configured", PinName(pin))
	}
	return p.Out(gpio.Level(value))
}

// Release drives every configured pin low and forgets it. Failures on
// every line are reported together.
func (g *GPIO) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs error
	for pin, p := range g.pins {
		if err := p.Out(gpio.Low); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", PinName(pin), err))
		}
		delete(g.pins, pin)
	}
	return errs
}
