package mcu

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrInvalidChannel is returned for channels the firmware does not have
var ErrInvalidChannel = errors.New("invalid servo channel")

// ServoState mirrors one servo_state report
type ServoState struct {
	Channel  uint8
	Attached bool
	Degrees  uint8
	PulseUS  uint16
	MinUS    uint16
	MaxUS    uint16
}

// ServoConfig mirrors the servo_config report
type ServoConfig struct {
	Channels int
	Mode     uint8
	FrameUS  uint32
}

// Attach starts the channel's output and confirms it took effect
func (m *MCU) Attach(ch uint8) error {
	if err := m.Send("servo_attach", uint32(ch)); err != nil {
		return err
	}
	st, err := m.Query(ch)
	if err != nil {
		return err
	}
	if !st.Attached {
		return fmt.Errorf("channel %d: attach rejected by driver", ch)
	}
	m.log.Info("servo attached", zap.Uint8("channel", ch))
	return nil
}

// Detach stops the channel's output
func (m *MCU) Detach(ch uint8) error {
	return m.Send("servo_detach", uint32(ch))
}

// SetMinimumPulse sets the 0 degree width; the firmware clamps it
func (m *MCU) SetMinimumPulse(ch uint8, us uint16) error {
	return m.Send("servo_set_min", uint32(ch), uint32(us))
}

// SetMaximumPulse sets the 180 degree width; the firmware clamps it
func (m *MCU) SetMaximumPulse(ch uint8, us uint16) error {
	return m.Send("servo_set_max", uint32(ch), uint32(us))
}

// Write commands an angle
func (m *MCU) Write(ch uint8, degrees uint16) error {
	return m.Send("servo_write", uint32(ch), uint32(degrees))
}

// Pulse commands a raw width
func (m *MCU) Pulse(ch uint8, us uint16) error {
	return m.Send("servo_pulse", uint32(ch), uint32(us))
}

// Query reads back a channel table entry
func (m *MCU) Query(ch uint8) (ServoState, error) {
	v, err := m.Request("servo_query", "servo_state", 7, uint32(ch))
	if err != nil {
		return ServoState{}, err
	}
	if v[1] == 0 {
		return ServoState{Channel: ch}, fmt.Errorf("channel %d: %w", ch, ErrInvalidChannel)
	}
	return ServoState{
		Channel:  uint8(v[0]),
		Attached: v[2] != 0,
		Degrees:  uint8(v[3]),
		PulseUS:  uint16(v[4]),
		MinUS:    uint16(v[5]),
		MaxUS:    uint16(v[6]),
	}, nil
}

// Read returns the last commanded angle
func (m *MCU) Read(ch uint8) (uint8, error) {
	st, err := m.Query(ch)
	return st.Degrees, err
}

// Config reads the bank geometry
func (m *MCU) Config() (ServoConfig, error) {
	v, err := m.Request("get_servo_config", "servo_config", 3)
	if err != nil {
		return ServoConfig{}, err
	}
	return ServoConfig{Channels: int(v[0]), Mode: uint8(v[1]), FrameUS: v[2]}, nil
}

// Clock reads the firmware's free running microsecond counter
func (m *MCU) Clock() (uint32, error) {
	v, err := m.Request("get_clock", "clock", 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}
