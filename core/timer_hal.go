package core

// ServoTimer is the shared hardware counter the servo engine runs on.
type ServoTimer interface {
	// Configure selects the prescaler (1<<shift) and loads the first
	// period, in counts.
	Configure(shift uint8, period uint32) error

	// Reload arms the next expiry period counts after the current one.
	// Only called from the expiry handler.
	Reload(period uint32)

	// Enable starts the counter. Each expiry calls handler with the
	// critical section held.
	Enable(handler func())

	// Disable stops the counter; no further expiries are delivered.
	Disable()
}

// Global singleton used by core code.
var servoTimer ServoTimer

// SetServoTimer is called by target-specific code to register its timer.
func SetServoTimer(t ServoTimer) {
	servoTimer = t
}

// MustServoTimer returns the configured timer or panics if missing.
func MustServoTimer() ServoTimer {
	if servoTimer == nil {
		panic("servo timer not configured")
	}
	return servoTimer
}

// SchedTimer implements ServoTimer on the software timer list. Targets
// that poll ProcessTimers from their main loop use it directly, and host
// builds drive it with AdvanceTime.
//
// One servo count equals one software timer tick, so the engine should be
// configured with ClockHz equal to TimerFreq and no prescaler.
type SchedTimer struct {
	timer   Timer
	period  uint32
	handler func()
	enabled bool
}

// NewSchedTimer creates a stopped software servo timer
func NewSchedTimer() *SchedTimer {
	return &SchedTimer{}
}

// Configure records the first period. The prescaler is ignored because
// the software timer list counts raw ticks.
func (s *SchedTimer) Configure(shift uint8, period uint32) error {
	s.period = period
	return nil
}

// Reload sets the next expiry relative to the previous one, so handler
// latency does not accumulate into the frame.
func (s *SchedTimer) Reload(period uint32) {
	s.period = period
}

// Enable arms the first expiry one period from now
func (s *SchedTimer) Enable(handler func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.handler = handler
	s.enabled = true
	s.timer.Handler = s.expire
	s.timer.WakeTime = GetTime() + s.period
	removeTimer(&s.timer)
	insertTimer(&s.timer)
}

// Disable cancels the pending expiry
func (s *SchedTimer) Disable() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.enabled = false
	removeTimer(&s.timer)
}

// expire runs inside TimerDispatch, which already holds the critical section
func (s *SchedTimer) expire(t *Timer) uint8 {
	if !s.enabled || s.handler == nil {
		return SF_DONE
	}
	s.handler()
	if !s.enabled || s.period == 0 {
		return SF_DONE
	}
	t.WakeTime += s.period
	return SF_RESCHEDULE
}
