package gcode

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pinguino/core"
)

type nopGPIO struct{}

func (nopGPIO) ConfigureOutput(core.GPIOPin) error { return nil }
func (nopGPIO) SetPin(core.GPIOPin, bool) error    { return nil }

func TestScriptDrivesServoBank(t *testing.T) {
	core.SetGPIODriver(nopGPIO{})
	timer := core.NewSchedTimer()
	core.SetServoTimer(timer)

	cfg := core.DefaultServoConfig()
	cfg.Channels = 2
	cfg.Pins = []core.GPIOPin{17, 18}
	bank := core.NewServoBank()
	if err := bank.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(bank.Stop)

	script := "M281 P1 L1000 U2000\nM280 P1 S90\nM280 P0 W3000\nM282 P0\n"
	var out bytes.Buffer
	if err := NewInterpreter(bank).Run(context.Background(), strings.NewReader(script), &out); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}

	if us, _ := bank.PulseWidth(1); us != 1500 || !bank.Attached(1) {
		t.Errorf("channel 1 pulse = %d attached=%t", us, bank.Attached(1))
	}
	if us, _ := bank.PulseWidth(0); us != core.ServoAbsoluteMaxUS {
		t.Errorf("channel 0 pulse = %d, want clamped to %d", us, core.ServoAbsoluteMaxUS)
	}
	if bank.Attached(0) {
		t.Error("M282 left channel 0 attached")
	}
}
