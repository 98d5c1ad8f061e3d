package core

// servoStrategy produces the edges of one frame. expire runs from the
// timer handler with interrupts disabled and returns the counts until the
// next expiry; it must never return zero.
type servoStrategy interface {
	enable(b *ServoBank, ch uint8) error
	release(b *ServoBank, ch uint8) // interrupts disabled
	disable(b *ServoBank, ch uint8)
	start(b *ServoBank) uint32
	expire(b *ServoBank) uint32
}

// firstExpiry delays the first frame by one count after Enable
const firstExpiry = 1

// softwareOutputs is shared by the two strategies that toggle GPIO lines
type softwareOutputs struct{}

func (softwareOutputs) enable(b *ServoBank, ch uint8) error {
	pin := b.channels[ch].pin
	if err := b.gpio.ConfigureOutput(pin); err != nil {
		return err
	}
	return b.gpio.SetPin(pin, false)
}

func (softwareOutputs) release(b *ServoBank, ch uint8) {
	b.setLine(ch, false)
}

func (softwareOutputs) disable(b *ServoBank, ch uint8) {}

// Parallel frame phases
const (
	phaseHighStart = iota
	phaseLowScan
)

// parallelFrame raises every attached line together, then walks the
// snapshot of edges in ascending order so each line drops after its own
// width. Channels sharing an edge drop in the same expiry.
type parallelFrame struct {
	softwareOutputs

	phase   uint8
	n       uint8 // Channels in the current snapshot
	next    uint8 // Next snapshot entry to drop
	elapsed uint32
	order   [MaxServoChannels]uint8
	edges   [MaxServoChannels]uint32
}

func (p *parallelFrame) start(b *ServoBank) uint32 {
	p.phase = phaseHighStart
	p.n = 0
	p.next = 0
	return firstExpiry
}

func (p *parallelFrame) expire(b *ServoBank) uint32 {
	if p.phase == phaseHighStart {
		return p.highStart(b)
	}
	return p.lowScan(b)
}

// highStart snapshots the attached widths and raises their lines. Changes
// made by the foreground after this point apply to the next frame.
func (p *parallelFrame) highStart(b *ServoBank) uint32 {
	p.n = 0
	p.next = 0
	p.elapsed = 0

	var mask uint32
	for ch := uint8(0); ch < b.count; ch++ {
		c := &b.channels[ch]
		if !c.attached || c.ticksHigh == 0 {
			continue
		}
		// insertion sort keeps equal edges in channel order
		i := p.n
		for i > 0 && p.edges[i-1] > c.ticksHigh {
			p.edges[i] = p.edges[i-1]
			p.order[i] = p.order[i-1]
			i--
		}
		p.edges[i] = c.ticksHigh
		p.order[i] = ch
		p.n++
		mask |= 1 << ch
	}

	if p.n == 0 {
		// Nothing attached, idle a whole frame
		return b.frameTicks
	}

	for i := uint8(0); i < p.n; i++ {
		b.setLine(p.order[i], true)
	}
	recordTiming(EvtFrameStart, frameChannel, mask, 0)

	p.phase = phaseLowScan
	return p.edges[0]
}

// lowScan drops every line whose edge has been reached and either waits
// for the next distinct edge or idles out the rest of the frame.
func (p *parallelFrame) lowScan(b *ServoBank) uint32 {
	p.elapsed = p.edges[p.next]
	for p.next < p.n && p.edges[p.next] <= p.elapsed {
		ch := p.order[p.next]
		b.setLine(ch, false)
		recordTiming(EvtEdgeLow, ch, p.elapsed, 0)
		p.next++
	}

	if p.next < p.n {
		return p.edges[p.next] - p.elapsed
	}

	p.phase = phaseHighStart
	return b.frameTicks - p.elapsed
}

// roundRobinFrame gives each channel an exclusive slot. A line is raised at
// the start of its slot and dropped within it, so only one line is ever
// high and the frame is Channels slots long.
type roundRobinFrame struct {
	softwareOutputs

	slot uint8
	high bool
	held uint32 // Counts the current line stays high
}

func (r *roundRobinFrame) start(b *ServoBank) uint32 {
	r.slot = b.count - 1
	r.high = false
	return firstExpiry
}

func (r *roundRobinFrame) expire(b *ServoBank) uint32 {
	if r.high {
		b.setLine(r.slot, false)
		recordTiming(EvtEdgeLow, r.slot, r.held, 0)
		r.high = false
		if rest := b.slotTicks - r.held; rest > 0 {
			return rest
		}
	}

	r.slot++
	if r.slot >= b.count {
		r.slot = 0
	}
	c := &b.channels[r.slot]
	if !c.attached || c.ticksHigh == 0 {
		return b.slotTicks
	}

	r.held = c.ticksHigh
	if r.held > b.slotTicks {
		r.held = b.slotTicks
	}
	b.setLine(r.slot, true)
	recordTiming(EvtSlotStart, r.slot, r.held, 0)
	r.high = true
	return r.held
}

// compareFrame reloads every compare unit at the frame boundary. Detached
// channels get a zero match and produce no pulse.
type compareFrame struct{}

func (compareFrame) enable(b *ServoBank, ch uint8) error {
	return b.compare.EnableCompare(ch, b.channels[ch].pin)
}

func (compareFrame) release(b *ServoBank, ch uint8) {
	b.compare.SetCompare(ch, 0)
}

func (compareFrame) disable(b *ServoBank, ch uint8) {
	if err := b.compare.DisableCompare(ch); err != nil {
		state := disableInterrupts()
		recordTiming(EvtDriverFault, ch, faultDetach, 0)
		restoreInterrupts(state)
	}
}

func (compareFrame) start(b *ServoBank) uint32 {
	return firstExpiry
}

func (compareFrame) expire(b *ServoBank) uint32 {
	var mask uint32
	for ch := uint8(0); ch < b.count; ch++ {
		c := &b.channels[ch]
		if c.attached {
			b.compare.SetCompare(ch, c.ticksHigh)
			mask |= 1 << ch
		} else {
			b.compare.SetCompare(ch, 0)
		}
	}
	recordTiming(EvtFrameStart, frameChannel, mask, 0)
	return b.frameTicks
}
