//go:build !wasm

package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// NativePort wraps a tarm/serial port
type NativePort struct {
	*serial.Port
	cfg *Config
}

// Open opens the device named by cfg
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, ErrNoDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return &NativePort{Port: port, cfg: cfg}, nil
}

// Flush discards buffered input and output
func (p *NativePort) Flush() error {
	return p.Port.Flush()
}
