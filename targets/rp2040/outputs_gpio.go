//go:build (rp2040 || rp2350) && !servo_pio && !servo_pwm

package main

import "pinguino/core"

// setupOutputs drives every channel from the frame timer through SIO
func setupOutputs() core.ServoMode {
	core.SetGPIODriver(NewRPGPIODriver())
	return servoGPIOMode
}
