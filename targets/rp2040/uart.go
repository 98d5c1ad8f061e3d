//go:build (rp2040 || rp2350) && servo_uart

package main

import (
	"context"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// UART link pins and rate, for boards wired to a host UART instead of USB
const (
	linkBaud = 250000
	linkTX   = machine.GPIO0
	linkRX   = machine.GPIO1
)

var linkUART = uartx.UART0

// InitLink configures UART0 for the host link
func InitLink() {
	_ = linkUART.Configure(uartx.UARTConfig{
		BaudRate: linkBaud,
		TX:       linkTX,
		RX:       linkRX,
	})
}

// LinkRead blocks until the UART has received at least one byte
func LinkRead(buf []byte) (int, error) {
	return linkUART.RecvSomeContext(context.Background(), buf)
}

// LinkWrite sends data to the host
func LinkWrite(data []byte) (int, error) {
	return linkUART.Write(data)
}
