//go:build (rp2040 || rp2350) && !servo_roundrobin

package main

import "pinguino/core"

const servoGPIOMode = core.ServoModeParallel
