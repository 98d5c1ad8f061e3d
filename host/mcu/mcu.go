// Package mcu is the host side client of the servo firmware
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pinguino/host/serial"
	"pinguino/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to MCU")
	ErrNoDictionary = errors.New("dictionary not loaded")
)

// Dictionary is the parsed identify document
type Dictionary struct {
	Version       string            `json:"version"`
	BuildVersions string            `json:"build_versions"`
	Config        map[string]string `json:"config"`
	Commands      map[string]int    `json:"commands"`
	Responses     map[string]int    `json:"responses"`
}

// ID looks a message up by its bare name
func (d *Dictionary) ID(name string) (uint16, bool) {
	for _, table := range []map[string]int{d.Commands, d.Responses} {
		for line, id := range table {
			if line == name || strings.HasPrefix(line, name+" ") {
				return uint16(id), true
			}
		}
	}
	return 0, false
}

// Check reports every message whose id or format differs from the table
// this client was built with.
func (d *Dictionary) Check() error {
	var err error
	for i, m := range protocol.Messages {
		id, ok := d.lineID(m.String())
		switch {
		case !ok:
			err = multierr.Append(err, fmt.Errorf("firmware lacks %q", m.String()))
		case id != i:
			err = multierr.Append(err, fmt.Errorf("%s has id %d, want %d", m.Name, id, i))
		}
	}
	return err
}

func (d *Dictionary) lineID(line string) (int, bool) {
	if id, ok := d.Commands[line]; ok {
		return id, true
	}
	id, ok := d.Responses[line]
	return id, ok
}

// MCU is a connection to one servo controller
type MCU struct {
	log        *zap.Logger
	transport  *protocol.HostTransport
	dictionary *Dictionary
	raw        []byte
	timeout    time.Duration
}

// NewMCU creates an unconnected client; a nil logger disables logging
func NewMCU(log *zap.Logger) *MCU {
	if log == nil {
		log = zap.NewNop()
	}
	return &MCU{log: log, timeout: time.Second}
}

// Connect opens a serial device with default settings
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial device
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	m.log.Info("serial port open", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	m.ConnectPort(port)
	return nil
}

// ConnectPort speaks the protocol over an already open stream
func (m *MCU) ConnectPort(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
}

// SetTimeout bounds each command's wait for its ack and response
func (m *MCU) SetTimeout(d time.Duration) {
	m.timeout = d
}

// Close drops the connection
func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	return err
}

// IsConnected reports whether a transport is open
func (m *MCU) IsConnected() bool {
	return m.transport != nil
}

// RetrieveDictionary reads the identify document in chunks, inflates it
// and checks it against the local message table.
func (m *MCU) RetrieveDictionary() error {
	if m.transport == nil {
		return ErrNotConnected
	}

	const chunkSize = 40
	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.identify(offset, chunkSize)
		if err != nil {
			return fmt.Errorf("dictionary chunk at %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < chunkSize {
			break
		}
	}
	m.raw = buf.Bytes()

	doc, err := inflate(m.raw)
	if err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}
	dict := &Dictionary{}
	if err := json.Unmarshal(doc, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	m.dictionary = dict

	m.log.Info("dictionary loaded",
		zap.String("version", dict.Version),
		zap.Int("compressed", len(m.raw)),
		zap.Int("size", len(doc)),
		zap.Int("commands", len(dict.Commands)),
		zap.Int("responses", len(dict.Responses)))

	if err := dict.Check(); err != nil {
		m.log.Warn("dictionary differs from the local message table", zap.Error(err))
	}
	return nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// identify fetches one chunk. identify and identify_response have fixed
// ids so they work before the dictionary is known.
func (m *MCU) identify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommandWithTimeout(protocol.MustMessageID("identify"), func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, offset, uint32(count))
	}, m.timeout)
	if err != nil {
		return nil, err
	}
	resp, err := m.transport.WaitFor(protocol.MustMessageID("identify_response"), m.timeout)
	if err != nil {
		return nil, err
	}

	args := resp.Args
	got, err := protocol.DecodeVLQUint(&args)
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, fmt.Errorf("offset mismatch: asked %d, got %d", offset, got)
	}
	data, err := protocol.DecodeVLQBytes(&args)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// Dictionary returns the loaded dictionary or nil
func (m *MCU) Dictionary() *Dictionary {
	return m.dictionary
}

// messageID resolves a name through the dictionary when one is loaded,
// falling back to the local table.
func (m *MCU) messageID(name string) (uint16, error) {
	if m.dictionary != nil {
		if id, ok := m.dictionary.ID(name); ok {
			return id, nil
		}
		return 0, fmt.Errorf("firmware has no message %q", name)
	}
	if id, ok := protocol.MessageID(name); ok {
		return id, nil
	}
	return 0, fmt.Errorf("unknown message %q", name)
}

// Send writes a named command with unsigned arguments and waits for the ack
func (m *MCU) Send(name string, args ...uint32) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	id, err := m.messageID(name)
	if err != nil {
		return err
	}
	m.log.Debug("send", zap.String("cmd", name), zap.Uint32s("args", args))
	if err := m.transport.SendCommandWithTimeout(id, func(out protocol.OutputBuffer) {
		protocol.EncodeArgs(out, args...)
	}, m.timeout); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Request sends a command and decodes the named response's arguments
func (m *MCU) Request(name, response string, nargs int, args ...uint32) ([]uint32, error) {
	if err := m.Send(name, args...); err != nil {
		return nil, err
	}
	id, err := m.messageID(response)
	if err != nil {
		return nil, err
	}
	msg, err := m.transport.WaitFor(id, m.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", response, err)
	}

	out := make([]uint32, nargs)
	ptrs := make([]*uint32, nargs)
	for i := range out {
		ptrs[i] = &out[i]
	}
	data := msg.Args
	if err := protocol.DecodeArgs(&data, ptrs...); err != nil {
		return nil, fmt.Errorf("decode %s: %w", response, err)
	}
	return out, nil
}

// handleResponse logs unsolicited reports from the reader goroutine
func (m *MCU) handleResponse(id uint16, data *[]byte) error {
	if id == protocol.MustMessageID("servo_fault") {
		ch, _ := protocol.DecodeVLQUint(data)
		m.log.Warn("servo driver fault", zap.Uint32("channel", ch))
	}
	return nil
}
