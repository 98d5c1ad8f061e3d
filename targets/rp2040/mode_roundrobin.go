//go:build (rp2040 || rp2350) && servo_roundrobin

package main

import "pinguino/core"

// One line high at a time keeps the peak supply current to one servo
const servoGPIOMode = core.ServoModeRoundRobin
