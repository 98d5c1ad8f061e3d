package linuxhal

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pinguino/core"
)

// ErrTimerRate is returned when the count rate cannot be represented
var ErrTimerRate = errors.New("timer rate out of range")

// FrameTimer implements core.ServoTimer on an OS clock. Each expiry runs
// the handler inside core.RunInterrupt. Deadlines advance from the previous
// deadline, not from when the handler ran, so late wakeups do not stretch
// the frame.
type FrameTimer struct {
	clk clock.Clock
	hz  uint32

	mu      sync.Mutex
	count   time.Duration
	period  uint32
	next    time.Time
	handler func()
	timer   *clock.Timer
	gen     uint64
}

// NewFrameTimer creates a stopped timer counting at hz before the
// prescaler. A nil clock uses the wall clock.
func NewFrameTimer(clk clock.Clock, hz uint32) *FrameTimer {
	if clk == nil {
		clk = clock.New()
	}
	return &FrameTimer{clk: clk, hz: hz}
}

// Configure sets the count length to (1<<shift)/hz and loads the first period
func (t *FrameTimer) Configure(shift uint8, period uint32) error {
	if t.hz == 0 || shift > 31 {
		return ErrTimerRate
	}
	count := time.Duration(uint64(time.Second) << shift / uint64(t.hz))
	if count == 0 {
		return ErrTimerRate
	}
	t.mu.Lock()
	t.count = count
	t.period = period
	t.mu.Unlock()
	return nil
}

// Reload is called from the handler, which already holds the critical
// section; the next deadline is computed once it returns.
func (t *FrameTimer) Reload(period uint32) {
	t.mu.Lock()
	t.period = period
	t.mu.Unlock()
}

// Enable arms the first expiry one period from now
func (t *FrameTimer) Enable(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.handler = handler
	t.next = t.clk.Now().Add(t.ticks(t.period))
	t.armLocked()
}

// Disable stops delivery. An expiry already waiting for the critical
// section is dropped.
func (t *FrameTimer) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.handler = nil
}

func (t *FrameTimer) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *FrameTimer) ticks(n uint32) time.Duration {
	return time.Duration(n) * t.count
}

func (t *FrameTimer) armLocked() {
	gen := t.gen
	wait := t.next.Sub(t.clk.Now())
	if wait < 0 {
		wait = 0
	}
	t.timer = t.clk.AfterFunc(wait, func() { t.fire(gen) })
}

func (t *FrameTimer) fire(gen uint64) {
	core.RunInterrupt(func() {
		t.mu.Lock()
		handler := t.handler
		live := gen == t.gen && handler != nil
		t.mu.Unlock()
		if !live {
			return
		}

		handler()

		t.mu.Lock()
		defer t.mu.Unlock()
		if gen != t.gen || t.period == 0 {
			return
		}
		t.next = t.next.Add(t.ticks(t.period))
		t.armLocked()
	})
}
