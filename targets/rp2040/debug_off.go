//go:build (rp2040 || rp2350) && !servo_debug

package main

import "pinguino/core"

// InitDebug leaves debug output off and skips timing capture
func InitDebug() {
	core.SetTimingCapture(false)
}
