package core

// EnterCritical masks the interrupts the servo engine depends on. Platform
// code that delivers timer expiries from outside TimerDispatch (an OS
// timer, a polling loop) must wrap the handler call with it.
func EnterCritical() State {
	return disableInterrupts()
}

// ExitCritical restores the state saved by EnterCritical
func ExitCritical(state State) {
	restoreInterrupts(state)
}

// RunInterrupt runs fn as an interrupt handler would: with the critical
// section held for its whole duration.
func RunInterrupt(fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	fn()
}
