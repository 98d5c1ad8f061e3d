//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"pinguino/core"
)

// TIMERAWL is the unlatched low word of the 1MHz system timer. Reading
// TIMELR instead would latch TIMEHR, which nothing here reads.
var timerRawLow = (*volatile.Register32)(unsafe.Pointer(uintptr(timerBase + 0x28)))

// InitClock publishes the MCU identity and starts the core clock
func InitClock() {
	core.RegisterStringConstant("MCU", mcuName)
	UpdateSystemTime()
}

// UpdateSystemTime copies the microsecond counter into the core clock
func UpdateSystemTime() {
	core.SetTime(timerRawLow.Get())
}
