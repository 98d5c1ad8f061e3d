package core

// GPIOPin is a line number in the target's own numbering (RP2040 GPIOn,
// Linux "GPIOn")
type GPIOPin uint32

// GPIODriver drives the servo lines in the software strategies.
type GPIODriver interface {
	// ConfigureOutput claims pin as a push-pull output, initially low
	ConfigureOutput(pin GPIOPin) error

	// SetPin drives an edge. It runs in the frame handler: no blocking,
	// no allocation.
	SetPin(pin GPIOPin, value bool) error
}

// Output driver for the parallel and round-robin strategies
var gpioDriver GPIODriver

// SetGPIODriver installs the line driver. Call before ServoBank.Init.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}
