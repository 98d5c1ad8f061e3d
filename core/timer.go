package core

import "sync/atomic"

// Timer frequencies
const (
	TimerFreq = 1000000 // 1MHz software timer (one tick per microsecond)
)

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

// SetTime sets the current system time (hardware integration and simulation)
func SetTime(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}

// AdvanceTime moves the system time forward by ticks, stopping at every
// timer wake time on the way so handlers observe the exact tick they were
// scheduled for. Host builds use it to simulate a free-running counter.
func AdvanceTime(ticks uint32) {
	target := GetTime() + ticks
	for {
		ProcessTimers()
		next, ok := nextWakeTime()
		if !ok || timerIsBefore(target, next) {
			break
		}
		SetTime(next)
	}
	SetTime(target)
	ProcessTimers()
}

// TimerFromUS converts microseconds to software timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts software timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// ServoTicks converts a pulse width to servo timer counts for a peripheral
// clock of clockMHz and a prescaler of 1<<shift. Truncates like the
// hardware period computation.
func ServoTicks(us uint32, clockMHz uint32, shift uint8) uint32 {
	return uint32((uint64(us) * uint64(clockMHz)) >> shift)
}

// PeriodRegister returns the value to load into a PR-style period or
// compare register so that it matches after ticks counts.
func PeriodRegister(ticks uint32) uint32 {
	if ticks == 0 {
		return 0
	}
	return ticks - 1
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
