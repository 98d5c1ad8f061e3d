package core

import (
	"pinguino/protocol"
)

var globalTransport *protocol.Transport

// SetGlobalTransport sets the transport responses are written to
func SetGlobalTransport(t *protocol.Transport) {
	globalTransport = t
}

// SendResponse encodes a response by name onto the global transport
func SendResponse(name string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		DebugPrintln("[CMD] unknown response " + name)
		return
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// servoCommands binds the message handlers to one bank
type servoCommands struct {
	bank *ServoBank
}

// InitServoCommands registers the message table with handlers driving
// bank, and publishes the bank's geometry as dictionary constants.
func InitServoCommands(bank *ServoBank) {
	s := &servoCommands{bank: bank}
	globalRegistry.RegisterTable(protocol.Messages, map[string]CommandHandler{
		"identify":         handleIdentify,
		"get_clock":        handleGetClock,
		"get_servo_config": s.handleGetConfig,
		"servo_attach":     s.handleAttach,
		"servo_detach":     s.handleDetach,
		"servo_set_min":    s.handleSetMin,
		"servo_set_max":    s.handleSetMax,
		"servo_write":      s.handleWrite,
		"servo_pulse":      s.handlePulse,
		"servo_query":      s.handleQuery,
	})

	RegisterConstant("CLOCK_FREQ", TimerFreq)
	RegisterConstant("SERVO_CHANNELS", uint32(bank.Channels()))
	RegisterConstant("SERVO_FRAME_US", bank.cfg.FrameUS)
	RegisterConstant("SERVO_MIN_US", ServoAbsoluteMinUS)
	RegisterConstant("SERVO_MAX_US", ServoAbsoluteMaxUS)
	RegisterStringConstant("SERVO_MODE", bank.Mode().String())
}

// handleIdentify returns a chunk of the compressed dictionary
func handleIdentify(data *[]byte) error {
	var offset, count uint32
	if err := protocol.DecodeArgs(data, &offset, &count); err != nil {
		return err
	}
	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func (s *servoCommands) handleGetConfig(data *[]byte) error {
	SendResponse("servo_config", func(output protocol.OutputBuffer) {
		protocol.EncodeArgs(output,
			uint32(s.bank.Channels()),
			uint32(s.bank.Mode()),
			s.bank.cfg.FrameUS)
	})
	return nil
}

// decodeChannel reads a channel argument; out of range values map to
// ServoInvalid so the bank ignores them.
func decodeChannel(data *[]byte) (uint8, error) {
	v, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return ServoInvalid, err
	}
	if v > ServoInvalid {
		return ServoInvalid, nil
	}
	return uint8(v), nil
}

// decodeChannelValue reads a channel and a 16 bit value, saturating the value
func decodeChannelValue(data *[]byte) (uint8, uint16, error) {
	ch, err := decodeChannel(data)
	if err != nil {
		return ch, 0, err
	}
	v, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return ch, 0, err
	}
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return ch, uint16(v), nil
}

func (s *servoCommands) handleAttach(data *[]byte) error {
	ch, err := decodeChannel(data)
	if err != nil {
		return err
	}
	if err := s.bank.Attach(ch); err != nil {
		DebugPrintln("[SERVO] attach " + itoa(int(ch)) + " failed: " + err.Error())
		SendResponse("servo_fault", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(ch))
		})
	}
	return nil
}

func (s *servoCommands) handleDetach(data *[]byte) error {
	ch, err := decodeChannel(data)
	if err != nil {
		return err
	}
	s.bank.Detach(ch)
	return nil
}

func (s *servoCommands) handleSetMin(data *[]byte) error {
	ch, us, err := decodeChannelValue(data)
	if err != nil {
		return err
	}
	s.bank.SetMinimumPulse(ch, us)
	return nil
}

func (s *servoCommands) handleSetMax(data *[]byte) error {
	ch, us, err := decodeChannelValue(data)
	if err != nil {
		return err
	}
	s.bank.SetMaximumPulse(ch, us)
	return nil
}

func (s *servoCommands) handleWrite(data *[]byte) error {
	ch, degrees, err := decodeChannelValue(data)
	if err != nil {
		return err
	}
	s.bank.Write(ch, degrees)
	return nil
}

func (s *servoCommands) handlePulse(data *[]byte) error {
	ch, us, err := decodeChannelValue(data)
	if err != nil {
		return err
	}
	s.bank.Pulse(ch, us)
	return nil
}

// handleQuery reports the channel table entry. Unknown channels report
// valid=0 and degrees=ServoInvalid.
func (s *servoCommands) handleQuery(data *[]byte) error {
	ch, err := decodeChannel(data)
	if err != nil {
		return err
	}

	var valid, attached uint32
	degrees := uint32(ServoInvalid)
	var pulse, lo, hi uint16
	if d, ok := s.bank.Read(ch); ok {
		valid = 1
		degrees = uint32(d)
		if s.bank.Attached(ch) {
			attached = 1
		}
		pulse, _ = s.bank.PulseWidth(ch)
		lo, _ = s.bank.MinimumPulse(ch)
		hi, _ = s.bank.MaximumPulse(ch)
	}

	SendResponse("servo_state", func(output protocol.OutputBuffer) {
		protocol.EncodeArgs(output, uint32(ch), valid, attached, degrees,
			uint32(pulse), uint32(lo), uint32(hi))
	})
	return nil
}
