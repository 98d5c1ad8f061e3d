//go:build !tinygo

package core

import "sync"

// State is the saved interrupt state. Host builds have no interrupt
// controller, so the global interrupt mask is emulated with a mutex: the
// simulated interrupt handler and foreground goroutines serialize on it.
type State uintptr

var interruptMask sync.Mutex

// disableInterrupts masks the emulated interrupt and returns the previous state
func disableInterrupts() State {
	interruptMask.Lock()
	return 0
}

// restoreInterrupts unmasks the emulated interrupt
func restoreInterrupts(state State) {
	interruptMask.Unlock()
}
