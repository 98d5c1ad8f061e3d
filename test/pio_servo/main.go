//go:build rp2040 || rp2350

package main

// PIO servo bring-up: sweeps every unit between the pulse bounds so each
// pin can be checked on a scope or with a servo attached.

import (
	"machine"
	"time"

	"pinguino/core"
	piosrv "pinguino/targets/pio"
)

var sweepPins = [piosrv.ServoUnits]core.GPIOPin{2, 3, 4, 5, 6, 7, 8, 9}

// Widths cycled through, in microseconds
var sweep = []struct {
	us   uint32
	name string
}{
	{core.ServoAbsoluteMinUS, "lower bound"},
	{core.ServoAbsoluteMidUS, "center"},
	{core.ServoAbsoluteMaxUS, "upper bound"},
	{core.ServoAbsoluteMidUS, "center"},
}

func blink(led machine.Pin, n int, d time.Duration) {
	for i := 0; i < n; i++ {
		led.High()
		time.Sleep(d)
		led.Low()
		time.Sleep(d)
	}
}

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	blink(led, 3, 100*time.Millisecond)

	println("=== PIO Servo Sweep ===")
	drv := piosrv.NewServoDriver()
	for unit, pin := range sweepPins {
		if err := drv.EnableCompare(uint8(unit), pin); err != nil {
			println("unit", unit, "pin", pin, "error:", err.Error())
			for {
				blink(led, 1, 50*time.Millisecond)
			}
		}
		println("unit", unit, "-> GP", pin)
	}

	frame := time.Duration(core.ServoDefaultFrameUS) * time.Microsecond
	for cycle := 1; ; cycle++ {
		println("\n=== Cycle", cycle, "===")
		for _, step := range sweep {
			println("Pulse:", step.us, "us -", step.name)
			led.High()
			// Two seconds of frames at this width
			for n := 0; n < 100; n++ {
				for unit := range sweepPins {
					drv.SetCompare(uint8(unit), step.us)
				}
				time.Sleep(frame)
			}
			led.Low()
		}
	}
}
