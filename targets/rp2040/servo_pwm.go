//go:build (rp2040 || rp2350) && servo_pwm

package main

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/servo"

	"pinguino/core"
)

// pwmServoUnits is one unit per channel; two channels may share a slice
const pwmServoUnits = 8

var errUnitRange = errors.New("compare unit out of range")

// PWMServoDriver implements core.CompareDriver on the PWM slices. Each
// slice runs a free 20ms period and the engine reloads the high time once
// per frame.
type PWMServoDriver struct {
	servos  [pwmServoUnits]servo.Servo
	enabled [pwmServoUnits]bool
}

// NewPWMServoDriver creates a driver with every unit stopped
func NewPWMServoDriver() *PWMServoDriver {
	return &PWMServoDriver{}
}

// Units returns the number of compare units
func (d *PWMServoDriver) Units() int {
	return pwmServoUnits
}

// EnableCompare routes unit to the slice channel owning pin.
// GPIO n belongs to slice (n>>1)&7, channel A for even pins.
func (d *PWMServoDriver) EnableCompare(unit uint8, pin core.GPIOPin) error {
	if unit >= pwmServoUnits {
		return errUnitRange
	}
	s, err := servo.New(pwmSlice(uint8(pin>>1)&0x7), machine.Pin(pin))
	if err != nil {
		return err
	}
	s.SetMicroseconds(0)
	d.servos[unit] = s
	d.enabled[unit] = true
	return nil
}

// DisableCompare holds the output low
func (d *PWMServoDriver) DisableCompare(unit uint8) error {
	if unit >= pwmServoUnits {
		return errUnitRange
	}
	if d.enabled[unit] {
		d.servos[unit].SetMicroseconds(0)
		d.enabled[unit] = false
	}
	return nil
}

// SetCompare loads the next high time; one count is one microsecond
func (d *PWMServoDriver) SetCompare(unit uint8, ticks uint32) {
	if unit >= pwmServoUnits || !d.enabled[unit] {
		return
	}
	if ticks > 0x7FFF {
		ticks = 0x7FFF
	}
	d.servos[unit].SetMicroseconds(int16(ticks))
}

// pwmSlice returns the PWM peripheral for a slice number
func pwmSlice(n uint8) servo.PWM {
	switch n {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
