package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TimingEvent captures a servo engine event for post-mortem analysis
type TimingEvent struct {
	EventType uint8  // Event type code
	Channel   uint8  // Servo channel, or 0xFF for frame-wide events
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtFrameStart  = 1 // Frame began; Value1 = attached mask
	EvtEdgeLow     = 2 // Line dropped; Value1 = counts since frame start
	EvtReload      = 3 // Timer reloaded; Value1 = period, Value2 = phase
	EvtAttach      = 4 // Channel attached
	EvtDetach      = 5 // Channel detached
	EvtDriverFault = 6 // Driver returned an error; Value1 = operation
	EvtSlotStart   = 7 // Round-robin slot began; Value1 = high counts
)

const (
	TimingRingSize = 32 // Keep last 32 events for post-mortem
	frameChannel   = 0xFF
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled bool

	// Timing capture ring buffer. Written only with interrupts disabled.
	timingRing     [TimingRingSize]TimingEvent
	timingRingHead uint8
	timingEnabled  = true
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// SetTimingCapture enables or disables the timing ring
func SetTimingCapture(enabled bool) {
	timingEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// recordTiming captures an event; callers hold the critical section
func recordTiming(eventType, channel uint8, value1, value2 uint32) {
	if !timingEnabled {
		return
	}
	idx := timingRingHead
	timingRing[idx] = TimingEvent{
		EventType: eventType,
		Channel:   channel,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	timingRingHead = (idx + 1) % TimingRingSize
}

// TimingEvents returns the captured events, oldest first
func TimingEvents() []TimingEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]TimingEvent, 0, TimingRingSize)
	for i := uint8(0); i < TimingRingSize; i++ {
		evt := timingRing[(timingRingHead+i)%TimingRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

// DumpTimingRing writes the timing ring through the debug writer
func DumpTimingRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[SERVO] === Timing Ring Dump ===")
	for _, evt := range TimingEvents() {
		var name string
		switch evt.EventType {
		case EvtFrameStart:
			name = "FRAME"
		case EvtEdgeLow:
			name = "EDGE_LOW"
		case EvtReload:
			name = "RELOAD"
		case EvtAttach:
			name = "ATTACH"
		case EvtDetach:
			name = "DETACH"
		case EvtDriverFault:
			name = "FAULT!"
		case EvtSlotStart:
			name = "SLOT"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[SERVO] " + name +
			" ch=" + itoa(int(evt.Channel)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[SERVO] === End Dump ===")
}

// ClearTimingRing clears the timing buffer
func ClearTimingRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range timingRing {
		timingRing[i] = TimingEvent{}
	}
	timingRingHead = 0
}
