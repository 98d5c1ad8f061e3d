// Servo pulse generation
// Multiplexes up to MaxServoChannels 50Hz servo pulse trains onto one
// shared timer, either by toggling GPIO lines from the timer interrupt or
// by loading hardware compare units once per frame.
package core

import (
	"errors"
	"time"
)

// Pulse limits in microseconds. The midpoint is the boundary neither
// calibration bound may cross.
const (
	ServoAbsoluteMinUS  = 500
	ServoAbsoluteMaxUS  = 2500
	ServoAbsoluteMidUS  = (ServoAbsoluteMinUS + ServoAbsoluteMaxUS) / 2
	ServoDefaultFrameUS = 20000 // 50Hz
	MaxServoChannels    = 8

	// ServoInvalid is what the wire protocol reports for an unknown channel
	ServoInvalid = 255
)

// ServoMode selects how edges are produced
type ServoMode uint8

const (
	// ServoModeParallel raises every attached line at the start of the
	// frame and drops each one at its own edge (two-phase software).
	ServoModeParallel ServoMode = iota

	// ServoModeRoundRobin gives every channel an exclusive slot of
	// FrameUS/Channels and pulses it at the start of its slot.
	ServoModeRoundRobin

	// ServoModeCompare loads one hardware compare unit per channel each
	// frame; the hardware produces the falling edge.
	ServoModeCompare
)

func (m ServoMode) String() string {
	switch m {
	case ServoModeParallel:
		return "parallel"
	case ServoModeRoundRobin:
		return "roundrobin"
	case ServoModeCompare:
		return "compare"
	default:
		return "unknown"
	}
}

// ParseServoMode maps a mode name back to its ServoMode
func ParseServoMode(name string) (ServoMode, error) {
	switch name {
	case "parallel", "":
		return ServoModeParallel, nil
	case "roundrobin", "round-robin":
		return ServoModeRoundRobin, nil
	case "compare", "oc", "pwm":
		return ServoModeCompare, nil
	}
	return 0, errors.New("servo: unknown mode " + name)
}

var (
	ErrServoChannels = errors.New("servo: channel count must be 1.." + itoa(MaxServoChannels))
	ErrServoPins     = errors.New("servo: software modes need one pin per channel")
	ErrServoClock    = errors.New("servo: clock too slow for the prescaler")
	ErrServoFrame    = errors.New("servo: frame or slot shorter than the longest pulse")
	ErrServoOverflow = errors.New("servo: frame period overflows the counter")
	ErrServoTimer    = errors.New("servo: no servo timer registered")
	ErrServoOutput   = errors.New("servo: no output driver registered for mode")
	ErrServoUnits    = errors.New("servo: compare driver has too few units")
)

// ServoConfig holds the build-time choices of the servo engine
type ServoConfig struct {
	Channels       int       // Number of channels (1..MaxServoChannels)
	Pins           []GPIOPin // Output line per channel
	Mode           ServoMode // Edge production strategy
	ClockHz        uint32    // Timer input clock, whole MHz
	PrescalerShift uint8     // Timer prescaler is 1<<PrescalerShift
	FrameUS        uint32    // Frame period

	// SynchronousWrite makes Write and Pulse block for one frame after
	// committing so the caller knows the new width has been output.
	SynchronousWrite bool

	// Delay blocks for us microseconds; defaults to time.Sleep
	Delay func(us uint32)
}

// DefaultServoConfig returns a single-channel parallel configuration on
// the software timer
func DefaultServoConfig() ServoConfig {
	return ServoConfig{
		Channels: 1,
		Pins:     []GPIOPin{0},
		Mode:     ServoModeParallel,
		ClockHz:  TimerFreq,
		FrameUS:  ServoDefaultFrameUS,
		Delay:    sleepUS,
	}
}

// applyDefaults fills in missing configuration values
func (c *ServoConfig) applyDefaults() {
	if c.ClockHz == 0 {
		c.ClockHz = TimerFreq
	}
	if c.FrameUS == 0 {
		c.FrameUS = ServoDefaultFrameUS
	}
	if c.Delay == nil {
		c.Delay = sleepUS
	}
}

// Validate checks the configuration against the timing budget
func (c *ServoConfig) Validate() error {
	if c.Channels < 1 || c.Channels > MaxServoChannels {
		return ErrServoChannels
	}
	if c.Mode != ServoModeCompare && len(c.Pins) < c.Channels {
		return ErrServoPins
	}
	mhz := c.ClockHz / 1000000
	if mhz == 0 || ServoTicks(ServoAbsoluteMinUS, mhz, c.PrescalerShift) == 0 {
		return ErrServoClock
	}
	if (uint64(c.FrameUS)*uint64(mhz))>>c.PrescalerShift > 0xFFFFFFFF {
		return ErrServoOverflow
	}
	longest := ServoTicks(ServoAbsoluteMaxUS, mhz, c.PrescalerShift)
	window := c.FrameUS
	if c.Mode == ServoModeRoundRobin {
		window = c.FrameUS / uint32(c.Channels)
	}
	if ServoTicks(window, mhz, c.PrescalerShift) <= longest {
		return ErrServoFrame
	}
	return nil
}

func sleepUS(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

// servoChannel is one entry of the channel table. Fields read by the
// interrupt handler (attached, ticksHigh, ticksLow) are only written with
// interrupts disabled.
type servoChannel struct {
	attached  bool
	pin       GPIOPin
	pulseUS   uint16 // Commanded width, always within [minUS, maxUS]
	minUS     uint16
	maxUS     uint16
	rangeUS   uint16 // maxUS - minUS
	ticksHigh uint32 // pulseUS in timer counts
	ticksLow  uint32 // Rest of the frame (or slot) in timer counts
}

// ServoBank owns the channel table and the timer that services it
type ServoBank struct {
	cfg        ServoConfig
	clockMHz   uint32
	frameTicks uint32
	slotTicks  uint32
	count      uint8
	channels   [MaxServoChannels]servoChannel

	timer    ServoTimer
	gpio     GPIODriver
	compare  CompareDriver
	strategy servoStrategy
}

// NewServoBank creates an uninitialized bank; every channel is invalid
// until Init succeeds.
func NewServoBank() *ServoBank {
	return &ServoBank{}
}

// Init resets the channel table and starts the shared timer with the
// drivers registered through SetServoTimer, SetGPIODriver and
// SetCompareDriver. Calling it again detaches every channel first.
func (b *ServoBank) Init(cfg ServoConfig) error {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if servoTimer == nil {
		return ErrServoTimer
	}

	var strategy servoStrategy
	switch cfg.Mode {
	case ServoModeCompare:
		if compareDriver == nil {
			return ErrServoOutput
		}
		if compareDriver.Units() < cfg.Channels {
			return ErrServoUnits
		}
		strategy = &compareFrame{}
	case ServoModeRoundRobin:
		if gpioDriver == nil {
			return ErrServoOutput
		}
		strategy = &roundRobinFrame{}
	default:
		if gpioDriver == nil {
			return ErrServoOutput
		}
		strategy = &parallelFrame{}
	}

	b.shutdown()

	state := disableInterrupts()
	b.cfg = cfg
	b.timer = servoTimer
	b.gpio = gpioDriver
	b.compare = compareDriver
	b.strategy = strategy
	b.clockMHz = cfg.ClockHz / 1000000
	b.frameTicks = b.ticks(cfg.FrameUS)
	b.slotTicks = b.ticks(cfg.FrameUS / uint32(cfg.Channels))
	b.count = uint8(cfg.Channels)
	for i := range b.channels {
		c := &b.channels[i]
		*c = servoChannel{
			minUS:   ServoAbsoluteMinUS,
			maxUS:   ServoAbsoluteMaxUS,
			rangeUS: ServoAbsoluteMaxUS - ServoAbsoluteMinUS,
		}
		if i < len(cfg.Pins) {
			c.pin = cfg.Pins[i]
		} else {
			c.pin = GPIOPin(i)
		}
		b.storePulse(c, ServoAbsoluteMidUS)
	}
	first := b.strategy.start(b)
	restoreInterrupts(state)

	if err := b.timer.Configure(cfg.PrescalerShift, first); err != nil {
		// Leave every channel invalid rather than a bank with no frames
		state := disableInterrupts()
		b.count = 0
		b.strategy = nil
		b.timer = nil
		restoreInterrupts(state)
		return err
	}
	b.timer.Enable(b.interrupt)
	return nil
}

// Stop halts the timer and detaches every channel. Init starts it again.
func (b *ServoBank) Stop() {
	b.shutdown()
}

// shutdown stops the timer and releases every attached output
func (b *ServoBank) shutdown() {
	if b.timer == nil {
		return
	}
	b.timer.Disable()
	for ch := uint8(0); ch < b.count; ch++ {
		b.Detach(ch)
	}
}

// ticks converts microseconds to timer counts
func (b *ServoBank) ticks(us uint32) uint32 {
	return ServoTicks(us, b.clockMHz, b.cfg.PrescalerShift)
}

// valid reports whether ch names a channel of the initialized bank
func (b *ServoBank) valid(ch uint8) bool {
	return ch < b.count
}

// Channels returns the number of configured channels
func (b *ServoBank) Channels() int {
	return int(b.count)
}

// Mode returns the active edge production strategy
func (b *ServoBank) Mode() ServoMode {
	return b.cfg.Mode
}

// FrameTicks returns the frame period in timer counts
func (b *ServoBank) FrameTicks() uint32 {
	return b.frameTicks
}

// SlotTicks returns the round-robin slot width in timer counts
func (b *ServoBank) SlotTicks() uint32 {
	return b.slotTicks
}

// Attach starts driving the channel's output. Invalid channels are
// ignored; a driver error leaves the channel detached.
func (b *ServoBank) Attach(ch uint8) error {
	if !b.valid(ch) {
		return nil
	}
	if err := b.strategy.enable(b, ch); err != nil {
		state := disableInterrupts()
		recordTiming(EvtDriverFault, ch, faultEnable, 0)
		restoreInterrupts(state)
		return err
	}

	state := disableInterrupts()
	defer restoreInterrupts(state)
	b.channels[ch].attached = true
	recordTiming(EvtAttach, ch, uint32(b.channels[ch].pin), 0)
	return nil
}

// Detach stops driving the channel's output and leaves it low. The
// calibration and commanded width are kept.
func (b *ServoBank) Detach(ch uint8) {
	if !b.valid(ch) {
		return
	}
	state := disableInterrupts()
	b.channels[ch].attached = false
	b.strategy.release(b, ch)
	recordTiming(EvtDetach, ch, 0, 0)
	restoreInterrupts(state)

	b.strategy.disable(b, ch)
}

// Attached reports whether the channel is driving its output; false for
// an invalid channel.
func (b *ServoBank) Attached(ch uint8) bool {
	if !b.valid(ch) {
		return false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return b.channels[ch].attached
}

// SetMinimumPulse sets the 0 degree width, clamped to [500, 1500]us
func (b *ServoBank) SetMinimumPulse(ch uint8, us uint16) {
	if !b.valid(ch) {
		return
	}
	us = clampUS(us, ServoAbsoluteMinUS, ServoAbsoluteMidUS)

	state := disableInterrupts()
	defer restoreInterrupts(state)
	c := &b.channels[ch]
	c.minUS = us
	c.rangeUS = c.maxUS - c.minUS
	b.storePulse(c, c.pulseUS)
}

// SetMaximumPulse sets the 180 degree width, clamped to [1500, 2500]us
func (b *ServoBank) SetMaximumPulse(ch uint8, us uint16) {
	if !b.valid(ch) {
		return
	}
	us = clampUS(us, ServoAbsoluteMidUS, ServoAbsoluteMaxUS)

	state := disableInterrupts()
	defer restoreInterrupts(state)
	c := &b.channels[ch]
	c.maxUS = us
	c.rangeUS = c.maxUS - c.minUS
	b.storePulse(c, c.pulseUS)
}

// MinimumPulse returns the channel's 0 degree width
func (b *ServoBank) MinimumPulse(ch uint8) (uint16, bool) {
	if !b.valid(ch) {
		return 0, false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return b.channels[ch].minUS, true
}

// MaximumPulse returns the channel's 180 degree width
func (b *ServoBank) MaximumPulse(ch uint8) (uint16, bool) {
	if !b.valid(ch) {
		return 0, false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return b.channels[ch].maxUS, true
}

// PulseWidth returns the commanded width in microseconds
func (b *ServoBank) PulseWidth(ch uint8) (uint16, bool) {
	if !b.valid(ch) {
		return 0, false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return b.channels[ch].pulseUS, true
}

// Write commands an angle. Degrees are taken modulo 360 and values above
// 180 fold back by 180, so 181..359 alias 1..179 while 0 and 180 stay the
// two distinct ends of the travel.
func (b *ServoBank) Write(ch uint8, degrees uint16) {
	if !b.valid(ch) {
		return
	}
	b.storeAngle(ch, FoldDegrees(degrees))
	b.settle()
}

// Pulse commands a raw width, clamped to the channel's calibration.
// Continuous rotation servos are driven this way.
func (b *ServoBank) Pulse(ch uint8, us uint16) {
	if !b.valid(ch) {
		return
	}
	state := disableInterrupts()
	b.storePulse(&b.channels[ch], us)
	restoreInterrupts(state)
	b.settle()
}

// Read returns the last commanded angle (0..180), not a measurement
func (b *ServoBank) Read(ch uint8) (uint8, bool) {
	if !b.valid(ch) {
		return 0, false
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	c := &b.channels[ch]
	return ServoPulseToAngle(c.pulseUS, c.minUS, c.rangeUS), true
}

func (b *ServoBank) storeAngle(ch uint8, degrees uint16) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	c := &b.channels[ch]
	b.storePulse(c, ServoAngleToPulse(degrees, c.minUS, c.rangeUS))
}

// storePulse clamps and commits a width with its derived counts. Must be
// called with interrupts disabled.
func (b *ServoBank) storePulse(c *servoChannel, us uint16) {
	c.pulseUS = clampUS(us, c.minUS, c.maxUS)
	c.ticksHigh = b.ticks(uint32(c.pulseUS))
	window := b.frameTicks
	if b.cfg.Mode == ServoModeRoundRobin {
		window = b.slotTicks
	}
	if c.ticksHigh > window {
		c.ticksHigh = window
	}
	c.ticksLow = window - c.ticksHigh
}

// settle blocks for one frame when synchronous writes are configured
func (b *ServoBank) settle() {
	if b.cfg.SynchronousWrite && b.cfg.Delay != nil {
		b.cfg.Delay(b.cfg.FrameUS)
	}
}

// interrupt is the timer expiry handler
func (b *ServoBank) interrupt() {
	period := b.strategy.expire(b)
	recordTiming(EvtReload, frameChannel, period, 0)
	b.timer.Reload(period)
}

// setLine drives a channel's GPIO from interrupt context
func (b *ServoBank) setLine(ch uint8, level bool) {
	if err := b.gpio.SetPin(b.channels[ch].pin, level); err != nil {
		recordTiming(EvtDriverFault, ch, faultSetPin, 0)
	}
}

// FoldDegrees maps any angle onto 0..180
func FoldDegrees(degrees uint16) uint16 {
	degrees %= 360
	if degrees > 180 {
		degrees -= 180
	}
	return degrees
}

// ServoAngleToPulse maps 0..180 degrees linearly onto [minUS, minUS+rangeUS]
func ServoAngleToPulse(degrees uint16, minUS, rangeUS uint16) uint16 {
	if degrees > 180 {
		degrees = 180
	}
	return minUS + uint16(uint32(degrees)*uint32(rangeUS)/180)
}

// ServoPulseToAngle is the inverse of ServoAngleToPulse, truncating
func ServoPulseToAngle(us, minUS, rangeUS uint16) uint8 {
	if rangeUS == 0 || us <= minUS {
		return 0
	}
	angle := 180 * uint32(us-minUS) / uint32(rangeUS)
	if angle > 180 {
		angle = 180
	}
	return uint8(angle)
}

func clampUS(us, lo, hi uint16) uint16 {
	if us < lo {
		return lo
	}
	if us > hi {
		return hi
	}
	return us
}

// Driver fault operation codes (TimingEvent.Value1)
const (
	faultEnable = 1
	faultSetPin = 2
	faultDetach = 3
)

// The default bank backs the sketch-style API below.
var defaultServos ServoBank

// DefaultServoBank returns the bank used by the Servo* functions
func DefaultServoBank() *ServoBank {
	return &defaultServos
}

// ServoInit initializes the default bank; call once at startup
func ServoInit(cfg ServoConfig) error {
	return defaultServos.Init(cfg)
}

// ServoAttach attaches a channel of the default bank
func ServoAttach(ch uint8) error {
	return defaultServos.Attach(ch)
}

// ServoDetach detaches a channel of the default bank
func ServoDetach(ch uint8) {
	defaultServos.Detach(ch)
}

// ServoAttached reports whether a channel of the default bank is attached
func ServoAttached(ch uint8) bool {
	return defaultServos.Attached(ch)
}

// ServoSetMinimumPulse sets the 0 degree width of a default bank channel
func ServoSetMinimumPulse(ch uint8, us uint16) {
	defaultServos.SetMinimumPulse(ch, us)
}

// ServoSetMaximumPulse sets the 180 degree width of a default bank channel
func ServoSetMaximumPulse(ch uint8, us uint16) {
	defaultServos.SetMaximumPulse(ch, us)
}

// ServoWrite commands an angle on the default bank
func ServoWrite(ch uint8, degrees uint16) {
	defaultServos.Write(ch, degrees)
}

// ServoPulse commands a raw width on the default bank
func ServoPulse(ch uint8, us uint16) {
	defaultServos.Pulse(ch, us)
}

// ServoRead returns the last commanded angle on the default bank
func ServoRead(ch uint8) (uint8, bool) {
	return defaultServos.Read(ch)
}
