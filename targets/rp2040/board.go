//go:build rp2040 || rp2350

package main

import "pinguino/core"

// servoPins is the output line per channel, GPIO2 upward
var servoPins = []core.GPIOPin{2, 3, 4, 5, 6, 7, 8, 9}

// boardServoConfig returns the bank configuration for the selected output
// backend. Every backend counts in hardware timer microseconds.
func boardServoConfig(mode core.ServoMode) core.ServoConfig {
	cfg := core.DefaultServoConfig()
	cfg.Channels = len(servoPins)
	cfg.Pins = servoPins
	cfg.Mode = mode
	cfg.ClockHz = core.TimerFreq
	cfg.FrameUS = core.ServoDefaultFrameUS
	return cfg
}
