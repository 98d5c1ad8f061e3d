//go:build (rp2040 || rp2350) && servo_pwm && !servo_pio

package main

import "pinguino/core"

// setupOutputs times each pulse in a PWM slice
func setupOutputs() core.ServoMode {
	core.SetCompareDriver(NewPWMServoDriver())
	return core.ServoModeCompare
}
