//go:build (rp2040 || rp2350) && servo_pio

package main

import (
	"pinguino/core"
	piosrv "pinguino/targets/pio"
)

// setupOutputs times each pulse in a PIO state machine
func setupOutputs() core.ServoMode {
	core.SetCompareDriver(piosrv.NewServoDriver())
	return core.ServoModeCompare
}
