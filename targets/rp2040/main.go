//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"pinguino/core"
	"pinguino/protocol"
)

const watchdogMillis = 1000

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport
	bank         *core.ServoBank
	bankConfig   core.ServoConfig

	// Link counters, visible to a debugger
	msgerrors                uint32
	linkWasDisconnected      bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog left running across a reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitLink()
	InitDebug()
	InitClock()

	mode := setupOutputs()
	timer := core.NewSchedTimer()
	core.SetServoTimer(timer)

	bankConfig = boardServoConfig(mode)
	bank = core.NewServoBank()
	if err := bank.Init(bankConfig); err != nil {
		core.DebugPrintln("[SERVO] init failed: " + err.Error())
		for {
			time.Sleep(time.Second)
		}
	}
	core.InitServoCommands(bank)

	dict := core.GetGlobalDictionary()
	dict.SetBuildVersions("tinygo " + mcuName)
	dict.Build()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		// A restarted host starts from a detached bank
		outputBuffer.Reset()
		if err := bank.Init(bankConfig); err != nil {
			core.DebugPrintln("[SERVO] reinit failed: " + err.Error())
		}
	})
	transport.SetFlushCallback(writeLink)
	transport.SetErrorCallback(func(cmdID uint16, err error) {
		msgerrors++
		core.DebugPrintln("[CMD] " + err.Error())
		core.DumpTimingRing()
	})
	core.SetGlobalTransport(transport)

	go linkReaderLoop()

	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogMillis})
	_ = machine.Watchdog.Start()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				transport.Receive(inputBuffer)
			}
			if len(outputBuffer.Result()) > 0 {
				writeLink()
			}

			UpdateSystemTime()
			core.ProcessTimers()
		}()

		machine.Watchdog.Update()
		// Yield to the reader goroutine
		time.Sleep(10 * time.Microsecond)
	}
}

// linkReaderLoop moves received bytes into the input FIFO
func linkReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go linkReaderLoop()
		}
	}()

	var buf [64]byte
	for {
		n, err := LinkRead(buf[:])
		if err != nil {
			msgerrors++
			time.Sleep(time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		if linkWasDisconnected {
			// Fresh connection: drop stale bytes and expect sequence 0x10
			linkWasDisconnected = false
			consecutiveWriteFailures = 0
			inputBuffer.Reset()
			outputBuffer.Reset()
			transport.Reset()
		}

		if inputBuffer.Write(buf[:n]) < n {
			msgerrors++
		}
	}
}

// writeLink flushes the output buffer, marking the link down after
// repeated failures so stale responses are not replayed.
func writeLink() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := LinkWrite(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				linkWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
