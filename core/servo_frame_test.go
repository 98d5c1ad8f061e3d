package core

import (
	"sync"
	"sync/atomic"
	"testing"
)

// recordingCompare keeps the last value loaded into each unit
type recordingCompare struct {
	mu       sync.Mutex
	units    int
	enabled  map[uint8]GPIOPin
	compares map[uint8]uint32
	loads    int
}

func (c *recordingCompare) Units() int { return c.units }

func (c *recordingCompare) EnableCompare(unit uint8, pin GPIOPin) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == nil {
		c.enabled = make(map[uint8]GPIOPin)
	}
	c.enabled[unit] = pin
	return nil
}

func (c *recordingCompare) DisableCompare(unit uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.enabled, unit)
	return nil
}

func (c *recordingCompare) SetCompare(unit uint8, ticks uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compares == nil {
		c.compares = make(map[uint8]uint32)
	}
	c.compares[unit] = ticks
	c.loads++
}

func (c *recordingCompare) value(unit uint8) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compares[unit]
}

func TestParallelFrameSingleChannel(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(1, ServoModeParallel))
	b.Attach(0)
	b.Write(0, 90)
	gpio.reset()

	AdvanceTime(60000)

	got := pulses(gpio.snapshot(), 10)
	if len(got) != 3 {
		t.Fatalf("got %d pulses in 60ms, want 3: %+v", len(got), got)
	}
	for i, p := range got {
		if p.width != 1500 {
			t.Errorf("pulse %d width = %d, want 1500", i, p.width)
		}
		if i > 0 && p.rise-got[i-1].rise != 20000 {
			t.Errorf("pulse %d period = %d, want 20000", i, p.rise-got[i-1].rise)
		}
	}
}

func TestParallelFrameMixedWidths(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(4, ServoModeParallel))
	for ch := uint8(0); ch < 4; ch++ {
		b.Attach(ch)
	}
	b.Write(0, 0)
	b.Write(1, 180)
	b.Write(2, 90)
	b.Write(3, 90) // shares an edge with channel 2
	gpio.reset()

	AdvanceTime(40000)

	edges := gpio.snapshot()
	want := []uint32{500, 2500, 1500, 1500}
	for ch, w := range want {
		got := pulses(edges, GPIOPin(10+ch))
		if len(got) != 2 {
			t.Fatalf("channel %d: %d pulses, want 2", ch, len(got))
		}
		for _, p := range got {
			if p.width != w {
				t.Errorf("channel %d width = %d, want %d", ch, p.width, w)
			}
		}
		if got[0].rise != pulses(edges, 10)[0].rise {
			t.Errorf("channel %d rose at %d, not with the frame", ch, got[0].rise)
		}
	}
}

func TestParallelFrameDetachedChannelsStayLow(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(3, ServoModeParallel))
	b.Attach(1)
	gpio.reset()

	AdvanceTime(50000)

	for _, e := range gpio.snapshot() {
		if e.pin != 11 && e.level {
			t.Fatalf("detached pin %d raised at %d", e.pin, e.at)
		}
	}
	if n := len(pulses(gpio.snapshot(), 11)); n != 3 {
		t.Errorf("attached channel produced %d pulses, want 3", n)
	}
}

func TestParallelFrameIdleWithoutChannels(t *testing.T) {
	_, gpio := newTestBank(t, testConfig(2, ServoModeParallel))

	AdvanceTime(100000)

	if n := len(gpio.snapshot()); n != 0 {
		t.Errorf("idle bank toggled %d times", n)
	}
	reloads := 0
	for _, evt := range TimingEvents() {
		if evt.EventType == EvtReload && evt.Value1 == 20000 {
			reloads++
		}
	}
	if reloads < 4 {
		t.Errorf("idle bank reloaded %d full frames, want at least 4", reloads)
	}
}

func TestParallelFrameChangeAppliesNextFrame(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(1, ServoModeParallel))
	b.Attach(0)
	b.Pulse(0, 2000)
	gpio.reset()

	// Land inside the first pulse, then shorten it
	AdvanceTime(1000)
	b.Pulse(0, 1000)
	AdvanceTime(39000)

	got := pulses(gpio.snapshot(), 10)
	if len(got) != 2 {
		t.Fatalf("got %d pulses, want 2", len(got))
	}
	if got[0].width != 2000 || got[1].width != 1000 {
		t.Errorf("widths = %d, %d; want 2000 then 1000", got[0].width, got[1].width)
	}
}

func TestParallelFrameDetachMidPulse(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(1, ServoModeParallel))
	b.Attach(0)
	b.Pulse(0, 2000)
	gpio.reset()

	AdvanceTime(500)
	b.Detach(0)
	AdvanceTime(40000)

	got := pulses(gpio.snapshot(), 10)
	if len(got) != 1 || got[0].width != 499 {
		t.Errorf("pulses after mid-pulse detach = %+v, want one cut at 499", got)
	}
}

func TestRoundRobinFrame(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(4, ServoModeRoundRobin))
	if b.SlotTicks() != 5000 {
		t.Fatalf("slot = %d, want 5000", b.SlotTicks())
	}
	b.Attach(0)
	b.Attach(1)
	b.Attach(3)
	b.Write(0, 0)
	b.Write(1, 180)
	b.Pulse(3, 1234)
	gpio.reset()

	AdvanceTime(60000)
	edges := gpio.snapshot()

	high := 0
	for _, e := range edges {
		if e.level {
			high++
		} else {
			high--
		}
		if high > 1 {
			t.Fatalf("two lines high at %d", e.at)
		}
	}

	want := map[int]uint32{0: 500, 1: 2500, 3: 1234}
	for ch, w := range want {
		got := pulses(edges, GPIOPin(10+ch))
		if len(got) != 3 {
			t.Fatalf("channel %d: %d pulses, want 3", ch, len(got))
		}
		for i, p := range got {
			if p.width != w {
				t.Errorf("channel %d width = %d, want %d", ch, p.width, w)
			}
			slotStart := 1 + uint32(ch)*5000 + uint32(i)*20000
			if p.rise != slotStart {
				t.Errorf("channel %d pulse %d rose at %d, want slot start %d", ch, i, p.rise, slotStart)
			}
		}
	}
	if n := len(pulses(edges, 12)); n != 0 {
		t.Errorf("detached channel 2 produced %d pulses", n)
	}
}

func TestRoundRobinPulseBoundedBySlot(t *testing.T) {
	cfg := testConfig(8, ServoModeRoundRobin)
	cfg.FrameUS = 24000
	b, gpio := newTestBank(t, cfg)
	for ch := uint8(0); ch < 8; ch++ {
		b.Attach(ch)
		b.Write(ch, 180)
	}
	gpio.reset()

	AdvanceTime(48000)

	for ch := 0; ch < 8; ch++ {
		for _, p := range pulses(gpio.snapshot(), GPIOPin(10+ch)) {
			if p.width > b.SlotTicks() {
				t.Errorf("channel %d pulse %d exceeds slot %d", ch, p.width, b.SlotTicks())
			}
			if p.width != 2500 {
				t.Errorf("channel %d width = %d, want 2500", ch, p.width)
			}
		}
	}
}

func TestCompareFrame(t *testing.T) {
	cmp := &recordingCompare{units: 4}
	SetCompareDriver(cmp)
	defer SetCompareDriver(nil)

	cfg := testConfig(2, ServoModeCompare)
	cfg.Pins = nil
	b, _ := newTestBank(t, cfg)

	if err := b.Attach(0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if pin, ok := cmp.enabled[0]; !ok || pin != 0 {
		t.Errorf("unit 0 enabled on %v (%v)", pin, ok)
	}
	b.Pulse(0, 1000)
	AdvanceTime(20001)

	if v := cmp.value(0); v != 1000 {
		t.Errorf("unit 0 compare = %d, want 1000", v)
	}
	if v := cmp.value(1); v != 0 {
		t.Errorf("detached unit 1 compare = %d, want 0", v)
	}

	b.Write(0, 180)
	AdvanceTime(20000)
	if v := cmp.value(0); v != 2500 {
		t.Errorf("unit 0 compare after Write(180) = %d", v)
	}

	b.Detach(0)
	if v := cmp.value(0); v != 0 {
		t.Errorf("unit 0 compare after Detach = %d", v)
	}
	if _, ok := cmp.enabled[0]; ok {
		t.Error("unit 0 still enabled after Detach")
	}
}

func TestPrescaledTicks(t *testing.T) {
	if got := ServoTicks(1500, 48, 3); got != 9000 {
		t.Errorf("ServoTicks(1500, 48MHz, /8) = %d, want 9000", got)
	}
	if got := ServoTicks(20000, 40, 3); got != 100000 {
		t.Errorf("ServoTicks(20000, 40MHz, /8) = %d, want 100000", got)
	}
	if got := PeriodRegister(9000); got != 8999 {
		t.Errorf("PeriodRegister(9000) = %d", got)
	}
	if got := PeriodRegister(0); got != 0 {
		t.Errorf("PeriodRegister(0) = %d", got)
	}
}

// The interrupt must never see a width without its matching counts while
// the foreground keeps committing new values.
func TestServoCommitIsAtomic(t *testing.T) {
	b, gpio := newTestBank(t, testConfig(1, ServoModeParallel))
	b.Attach(0)
	gpio.reset()

	var stop int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; atomic.LoadInt32(&stop) == 0; i++ {
			if i%2 == 0 {
				b.Pulse(0, 1000)
			} else {
				b.Write(0, 180)
			}
		}
	}()

	var torn int
	for frame := 0; frame < 200; frame++ {
		AdvanceTime(10000)
		RunInterrupt(func() {
			c := &b.channels[0]
			if c.ticksHigh != uint32(c.pulseUS) || c.ticksHigh+c.ticksLow != b.frameTicks {
				torn++
			}
		})
	}
	atomic.StoreInt32(&stop, 1)
	wg.Wait()

	if torn != 0 {
		t.Errorf("interrupt saw %d torn channel entries", torn)
	}
	for _, p := range pulses(gpio.snapshot(), 10) {
		if p.width != 1000 && p.width != 2500 {
			t.Errorf("pulse width %d is neither commanded value", p.width)
		}
	}
}

// pollTimers steps the clock like the firmware main loop, failing if one
// poll produces more than maxEdges edges
func pollTimers(t *testing.T, gpio *recordingGPIO, step, total uint32, maxEdges int) {
	t.Helper()
	now := GetTime()
	for elapsed := uint32(0); elapsed < total; elapsed += step {
		now += step
		SetTime(now)
		before := len(gpio.snapshot())
		ProcessTimers()
		if n := len(gpio.snapshot()) - before; n > maxEdges {
			t.Fatalf("one poll at %#x produced %d edges", now, n)
		}
	}
}

func TestParallelFramePeriodAcrossClockWrap(t *testing.T) {
	b, gpio := newTestBankAt(t, testConfig(1, ServoModeParallel), 0xFFFFFFFF-50000)
	b.Attach(0)
	b.Write(0, 90)

	pollTimers(t, gpio, 10, 200000, 2)

	got := pulses(gpio.snapshot(), 10)
	if len(got) < 9 {
		t.Fatalf("got %d pulses in 200ms, want at least 9", len(got))
	}
	wrapped := false
	for i, p := range got {
		if p.width != 1500 {
			t.Errorf("pulse %d at %#x width = %d, want 1500", i, p.rise, p.width)
		}
		if i > 0 {
			if d := p.rise - got[i-1].rise; d != ServoDefaultFrameUS {
				t.Errorf("pulse %d at %#x period = %d, want %d", i, p.rise, d, ServoDefaultFrameUS)
			}
			if p.rise < got[i-1].rise {
				wrapped = true
			}
		}
	}
	if !wrapped {
		t.Error("pulses never crossed the clock wrap")
	}
}

func TestRoundRobinPeriodAcrossClockWrap(t *testing.T) {
	b, gpio := newTestBankAt(t, testConfig(2, ServoModeRoundRobin), 0xFFFFFFFF-30000)
	b.Attach(0)
	b.Attach(1)
	b.Pulse(0, 1000)
	b.Pulse(1, 2000)

	AdvanceTime(100000)

	for ch, width := range map[GPIOPin]uint32{10: 1000, 11: 2000} {
		got := pulses(gpio.snapshot(), ch)
		if len(got) < 4 {
			t.Fatalf("pin %d: got %d pulses in 100ms", ch, len(got))
		}
		for i, p := range got {
			if p.width != width {
				t.Errorf("pin %d pulse %d width = %d, want %d", ch, i, p.width, width)
			}
			if i > 0 && p.rise-got[i-1].rise != ServoDefaultFrameUS {
				t.Errorf("pin %d pulse %d period = %d", ch, i, p.rise-got[i-1].rise)
			}
		}
	}
}
