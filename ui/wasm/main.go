//go:build js && wasm

// Command wasm exposes the servo wire protocol to a browser page so frames
// captured off the link can be decoded and commands composed by hand.
package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"syscall/js"

	"pinguino/protocol"
)

func main() {
	js.Global().Set("pinguinoWasm", js.ValueOf(map[string]interface{}{
		"encodeCommand": js.FuncOf(encodeCommandWrapper),
		"decodeFrame":   js.FuncOf(decodeFrameWrapper),
		"crc16":         js.FuncOf(crc16Wrapper),
		"messages":      js.FuncOf(messagesWrapper),
		"dictionary":    protocol.Dictionary(),
		"version":       protocol.Version,
	}))

	select {}
}

// encodeCommandWrapper builds a frame for a named message
// Args: name, sequence (0-15), then one value per parameter
// Returns: {frame: hex} or {error}
func encodeCommandWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: encodeCommand(name, seq, args...)")
	}
	frame, err := encodeCommand(args[0].String(), args[1].Int(), args[2:])
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(map[string]interface{}{"frame": hex.EncodeToString(frame)})
}

func encodeCommand(name string, seq int, values []js.Value) ([]byte, error) {
	id, ok := protocol.MessageID(name)
	if !ok {
		return nil, fmt.Errorf("unknown message %q", name)
	}
	msg := protocol.Messages[id]
	params := strings.Fields(msg.Params)
	if len(values) != len(params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, len(params), len(values))
	}

	out := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(out, uint32(id))
	for i, p := range params {
		if strings.HasSuffix(p, "%*s") {
			b, err := hex.DecodeString(values[i].String())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			protocol.EncodeVLQBytes(out, b)
			continue
		}
		v, err := strconv.ParseUint(values[i].String(), 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		protocol.EncodeVLQUint(out, uint32(v))
	}
	return protocol.AppendFrame(nil, protocol.MessageDest|byte(seq)&protocol.MessageSeqMask, out.Result()), nil
}

// decodeFrameWrapper decodes the frame at the head of a hex capture
// Returns: {length, sequence, ack, messages: [{name, id, args}], error}
func decodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing hex string argument")
	}
	data, err := hex.DecodeString(strings.ReplaceAll(args[0].String(), " ", ""))
	if err != nil {
		return errorResult("invalid hex string: " + err.Error())
	}
	for len(data) > 0 && data[0] == protocol.MessageValueSync {
		data = data[1:]
	}
	frame, n, err := protocol.ParseFrame(data)
	if err != nil {
		return errorResult(err.Error())
	}

	result := map[string]interface{}{
		"length":   n,
		"sequence": int(frame.Sequence & protocol.MessageSeqMask),
		"ack":      len(frame.Payload) == 0,
	}
	msgs, err := decodePayload(frame.Payload)
	result["messages"] = msgs
	if err != nil {
		result["error"] = err.Error()
	}
	return js.ValueOf(result)
}

// decodePayload splits a payload into messages, naming each argument
func decodePayload(payload []byte) ([]interface{}, error) {
	var msgs []interface{}
	for len(payload) > 0 {
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return msgs, err
		}
		if int(id) >= len(protocol.Messages) {
			return msgs, fmt.Errorf("unknown message id %d", id)
		}
		msg := protocol.Messages[id]
		fields := map[string]interface{}{}
		for _, p := range strings.Fields(msg.Params) {
			name, format, _ := strings.Cut(p, "=")
			if format == "%*s" {
				b, err := protocol.DecodeVLQBytes(&payload)
				if err != nil {
					return msgs, fmt.Errorf("%s.%s: %w", msg.Name, name, err)
				}
				fields[name] = hex.EncodeToString(b)
				continue
			}
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				return msgs, fmt.Errorf("%s.%s: %w", msg.Name, name, err)
			}
			fields[name] = int(v)
		}
		msgs = append(msgs, map[string]interface{}{
			"name": msg.Name,
			"id":   int(id),
			"args": fields,
		})
	}
	return msgs, nil
}

// crc16Wrapper returns the frame checksum of a hex string
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// messagesWrapper lists the message table as [{id, name, params}]
func messagesWrapper(this js.Value, args []js.Value) interface{} {
	list := make([]interface{}, len(protocol.Messages))
	for i, m := range protocol.Messages {
		names := m.ParamNames()
		params := make([]interface{}, len(names))
		for j, n := range names {
			params[j] = n
		}
		list[i] = map[string]interface{}{"id": i, "name": m.Name, "params": params}
	}
	return js.ValueOf(list)
}

func errorResult(msg string) js.Value {
	return js.ValueOf(map[string]interface{}{"error": msg})
}
