//go:build (rp2040 || rp2350) && !servo_uart

package main

import (
	"machine"
	"time"
)

// InitLink configures the USB CDC port the host talks to
func InitLink() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// LinkRead copies whatever the CDC port has buffered into buf, waiting
// briefly when nothing has arrived.
func LinkRead(buf []byte) (int, error) {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		buf[n] = b
		n++
	}
	if n == 0 {
		time.Sleep(100 * time.Microsecond)
	}
	return n, nil
}

// LinkWrite sends data to the host
func LinkWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
