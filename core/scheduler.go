package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	removeTimer(t)
	insertTimer(t)
}

// CancelTimer removes a timer from the schedule if it is pending
func CancelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	removeTimer(t)
}

// timerIsBefore reports whether tick a comes before tick b. The counter
// wraps, so ticks are ordered by signed distance and must stay within
// 2^31 of each other.
func timerIsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// insertTimer inserts a timer in sorted order by WakeTime
func insertTimer(t *Timer) {
	if timerList == nil || timerIsBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && !timerIsBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// removeTimer unlinks t; must be called with interrupts disabled
func removeTimer(t *Timer) {
	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for current := timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// nextWakeTime reports the wake time of the earliest pending timer
func nextWakeTime() (uint32, bool) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == nil {
		return 0, false
	}
	return timerList.WakeTime, true
}

// TimerDispatch processes due timers. Handlers run with interrupts
// disabled and must reschedule by returning SF_RESCHEDULE, never by
// calling ScheduleTimer.
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && !timerIsBefore(currentTime, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

// resetTimers drops every pending timer (tests and re-initialization)
func resetTimers() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil {
		t := timerList
		timerList = t.Next
		t.Next = nil
	}
	currentTime = 0
}
