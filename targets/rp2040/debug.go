//go:build (rp2040 || rp2350) && servo_debug

package main

import (
	"machine"

	"pinguino/core"
)

var debugUART *machine.UART

// InitDebug routes core debug output and the timing ring to UART1 on
// GPIO20 (TX) and GPIO21 (RX) at 115200 baud.
func InitDebug() {
	debugUART = machine.UART1
	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO20,
		RX:       machine.GPIO21,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(debugPrintln)
	core.SetDebugEnabled(true)
	debugPrintln("=== " + mcuName + " servo debug ===")
}

func debugPrintln(s string) {
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
