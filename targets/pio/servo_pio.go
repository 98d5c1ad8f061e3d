//go:build rp2040 || rp2350

package pio

// PIO servo backend using tinygo-org/pio. Each channel owns one state
// machine that turns a pushed count into a single high pulse, so edge
// timing is independent of interrupt latency.

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"pinguino/core"
)

// ServoUnits is two PIO blocks of four state machines
const ServoUnits = 8

var errUnitRange = errors.New("pio: compare unit out of range")

// buildServoProgram emits one pulse per FIFO word. With x = n the loop
// runs n+1 cycles and the set adds one, so callers push
// core.PeriodRegister(ticks).
//
//	.wrap_target
//	0: pull block
//	1: out x, 32
//	2: set pins, 1
//	3: jmp x--, 3
//	4: set pins, 0
//	.wrap
func buildServoProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),
		asm.Out(rp2pio.OutDestX, 32).Encode(),
		asm.Set(rp2pio.SetDestPins, 1).Encode(),
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(),
		asm.Set(rp2pio.SetDestPins, 0).Encode(),
	}
}

const servoPIOOrigin = 0 // Jump targets above are absolute

// servoUnit is one claimed state machine
type servoUnit struct {
	sm      rp2pio.StateMachine
	pin     machine.Pin
	owned   bool // Claimed by this driver; never released
	enabled bool
}

// ServoDriver implements core.CompareDriver on PIO state machines. The
// state machines count at 1MHz, one count per servo engine tick.
type ServoDriver struct {
	units   [ServoUnits]servoUnit
	offsets [2]uint8
	loaded  [2]bool
}

// NewServoDriver creates a driver with every unit stopped
func NewServoDriver() *ServoDriver {
	return &ServoDriver{}
}

// Units returns the number of state machines available for servos
func (d *ServoDriver) Units() int {
	return ServoUnits
}

// block maps a unit to its PIO block and state machine index
func block(unit uint8) (*rp2pio.PIO, uint8, uint8) {
	if unit < 4 {
		return rp2pio.PIO0, 0, unit
	}
	return rp2pio.PIO1, 1, unit - 4
}

// EnableCompare claims the unit's state machine, loads the pulse program
// once per block and hands pin to the PIO.
func (d *ServoDriver) EnableCompare(unit uint8, pin core.GPIOPin) error {
	if unit >= ServoUnits {
		return errUnitRange
	}
	hw, blk, smNum := block(unit)
	u := &d.units[unit]
	if u.enabled {
		d.stop(u)
	}
	sm := hw.StateMachine(smNum)
	if err := claimOnce(&u.owned, &sm); err != nil {
		return err
	}
	u.sm = sm

	program := buildServoProgram()
	if !d.loaded[blk] {
		offset, err := hw.AddProgram(program, servoPIOOrigin)
		if err != nil {
			return err
		}
		d.offsets[blk] = offset
		d.loaded[blk] = true
	}
	offset := d.offsets[blk]

	u.pin = machine.Pin(pin)
	u.pin.Configure(machine.PinConfig{Mode: hw.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(u.pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(uint16(machine.CPUFrequency()/core.TimerFreq), 0)

	u.sm.Init(offset, cfg)
	u.sm.SetPindirsConsecutive(u.pin, 1, true)
	u.sm.SetPinsConsecutive(u.pin, 1, false)
	u.sm.SetEnabled(true)
	u.enabled = true
	return nil
}

// DisableCompare stops the state machine and leaves the line low
func (d *ServoDriver) DisableCompare(unit uint8) error {
	if unit >= ServoUnits {
		return errUnitRange
	}
	u := &d.units[unit]
	if !u.enabled {
		return nil
	}
	d.stop(u)
	return nil
}

func (d *ServoDriver) stop(u *servoUnit) {
	u.sm.SetEnabled(false)
	u.sm.ClearFIFOs()
	u.sm.Restart()
	u.sm.SetPinsConsecutive(u.pin, 1, false)
	u.enabled = false
}

// SetCompare queues one pulse of ticks counts. The loop counts x down
// through zero, so the FIFO word is the period register value. Zero queues
// nothing. A full FIFO drops the pulse rather than blocking the frame
// interrupt.
func (d *ServoDriver) SetCompare(unit uint8, ticks uint32) {
	if unit >= ServoUnits || ticks == 0 {
		return
	}
	u := &d.units[unit]
	if !u.enabled || u.sm.IsTxFIFOFull() {
		return
	}
	u.sm.TxPut(core.PeriodRegister(ticks))
}
