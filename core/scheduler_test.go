package core

import (
	"testing"
	"time"
)

func TestTimerOrdering(t *testing.T) {
	resetTimers()
	SetTime(0)
	defer resetTimers()

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer) uint8 {
			fired = append(fired, id)
			return SF_DONE
		}}
	}
	ScheduleTimer(mk(3, 300))
	ScheduleTimer(mk(1, 100))
	ScheduleTimer(mk(2, 200))
	ScheduleTimer(mk(4, 200)) // same wake time runs after 2

	AdvanceTime(1000)

	want := []int{1, 2, 4, 3}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired %v, want %v", fired, want)
		}
	}
}

func TestTimerRescheduleSeesExactTime(t *testing.T) {
	resetTimers()
	SetTime(0)
	defer resetTimers()

	var at []uint32
	timer := &Timer{WakeTime: 50}
	timer.Handler = func(tm *Timer) uint8 {
		at = append(at, GetTime())
		if len(at) == 5 {
			return SF_DONE
		}
		tm.WakeTime += 70
		return SF_RESCHEDULE
	}
	ScheduleTimer(timer)

	AdvanceTime(10000)

	for i, v := range at {
		if want := uint32(50 + 70*i); v != want {
			t.Errorf("run %d at %d, want %d", i, v, want)
		}
	}
	if len(at) != 5 {
		t.Errorf("ran %d times, want 5", len(at))
	}
	if GetTime() != 10000 {
		t.Errorf("time after AdvanceTime = %d", GetTime())
	}
}

func TestCancelTimer(t *testing.T) {
	resetTimers()
	SetTime(0)
	defer resetTimers()

	fired := false
	timer := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}}
	ScheduleTimer(timer)
	CancelTimer(timer)
	AdvanceTime(100)

	if fired {
		t.Error("cancelled timer fired")
	}
}

func TestSchedTimerPeriod(t *testing.T) {
	resetTimers()
	SetTime(1000)
	defer resetTimers()

	st := NewSchedTimer()
	st.Configure(0, 250)
	var at []uint32
	st.Enable(func() {
		at = append(at, GetTime())
		st.Reload(400)
	})

	AdvanceTime(1500)
	st.Disable()
	AdvanceTime(5000)

	want := []uint32{1250, 1650, 2050, 2450}
	if len(at) != len(want) {
		t.Fatalf("expiries at %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Errorf("expiry %d at %d, want %d", i, at[i], want[i])
		}
	}
}

func TestTimerConversions(t *testing.T) {
	if TimerFromUS(20000) != 20000 || TimerToUS(1500) != 1500 {
		t.Errorf("1MHz timer conversions are not identity")
	}
}

func TestCriticalSectionHoldsOffInterrupt(t *testing.T) {
	done := make(chan struct{})
	state := EnterCritical()
	go RunInterrupt(func() { close(done) })

	select {
	case <-done:
		t.Fatal("interrupt ran inside the critical section")
	case <-time.After(20 * time.Millisecond):
	}
	ExitCritical(state)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupt did not run after ExitCritical")
	}
}

func TestTimerOrderingAcrossWrap(t *testing.T) {
	resetTimers()
	SetTime(0xFFFFFFF0)
	defer resetTimers()

	var fired []uint32
	mk := func(wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(tm *Timer) uint8 {
			fired = append(fired, tm.WakeTime)
			return SF_DONE
		}}
	}
	// Scheduled after the wrap first, so it must be reordered behind
	ScheduleTimer(mk(0x00000005))
	ScheduleTimer(mk(0xFFFFFFFA))
	ScheduleTimer(mk(0x00000001))

	SetTime(0xFFFFFFF9)
	ProcessTimers()
	if len(fired) != 0 {
		t.Fatalf("fired early: %#x", fired)
	}
	SetTime(0xFFFFFFFC)
	ProcessTimers()
	if len(fired) != 1 || fired[0] != 0xFFFFFFFA {
		t.Fatalf("before wrap fired %#x, want [0xfffffffa]", fired)
	}
	SetTime(0x00000010)
	ProcessTimers()
	want := []uint32{0xFFFFFFFA, 0x00000001, 0x00000005}
	if len(fired) != len(want) {
		t.Fatalf("fired %#x, want %#x", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fire %d at %#x, want %#x", i, fired[i], want[i])
		}
	}
}

func TestRescheduleAcrossWrap(t *testing.T) {
	resetTimers()
	start := uint32(0xFFFFFFFF - 95)
	SetTime(start)
	defer resetTimers()

	var fired []uint32
	tm := &Timer{WakeTime: start + 20, Handler: func(tm *Timer) uint8 {
		fired = append(fired, GetTime())
		tm.WakeTime += 20
		return SF_RESCHEDULE
	}}
	ScheduleTimer(tm)

	now := start
	for i := 0; i < 20; i++ {
		now += 10
		SetTime(now)
		before := len(fired)
		ProcessTimers()
		if n := len(fired) - before; n > 1 {
			t.Fatalf("poll at %#x fired %d times", now, n)
		}
	}
	if len(fired) != 10 {
		t.Fatalf("fired %d times in 200 ticks, want 10", len(fired))
	}
	for i := 1; i < len(fired); i++ {
		if d := fired[i] - fired[i-1]; d != 20 {
			t.Errorf("fire %d after %d ticks, want 20", i, d)
		}
	}
}

func TestAdvanceTimeAcrossWrap(t *testing.T) {
	resetTimers()
	start := uint32(0xFFFFFFFF - 500)
	SetTime(start)
	defer resetTimers()

	var fired []uint32
	ScheduleTimer(&Timer{WakeTime: start + 1000, Handler: func(*Timer) uint8 {
		fired = append(fired, GetTime())
		return SF_DONE
	}})

	AdvanceTime(2000)
	if len(fired) != 1 || fired[0] != start+1000 {
		t.Errorf("fired at %#x, want [%#x]", fired, start+1000)
	}
	if GetTime() != start+2000 {
		t.Errorf("time = %#x, want %#x", GetTime(), start+2000)
	}
}
