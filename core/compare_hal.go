package core

// CompareDriver is a bank of output-compare (or PWM) units sharing the
// servo base timer. Each unit raises its line at the start of a frame and
// drops it by itself once the counter passes the loaded match value, so
// the falling edge needs no software.
type CompareDriver interface {
	// Units returns how many independent compare units are available
	Units() int

	// EnableCompare routes unit to pin and starts driving it
	EnableCompare(unit uint8, pin GPIOPin) error

	// DisableCompare stops the unit; the pin is released low
	DisableCompare(unit uint8) error

	// SetCompare loads the number of counts the line stays high in the
	// next frame. Zero means no pulse. Called from interrupt context.
	SetCompare(unit uint8, ticks uint32)
}

// Output driver for the compare strategy
var compareDriver CompareDriver

// SetCompareDriver installs the compare bank. Call before ServoBank.Init.
func SetCompareDriver(d CompareDriver) {
	compareDriver = d
}
