package protocol

import "sync/atomic"

// CommandHandler decodes and runs one message; it must consume exactly its
// own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link. It validates incoming frames,
// acknowledges every frame it sees and dispatches in-sequence payloads.
type Transport struct {
	synced  uint32 // atomic bool
	nextSeq uint32 // atomic, next expected 0x10|n

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
	errorCallback func(cmdID uint16, err error)
}

// NewTransport creates a synchronized transport expecting sequence 0x10
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		synced:  1,
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
}

// Receive consumes as many complete frames from input as possible
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.isSynced() {
			var found bool
			data, found = skipToSync(data)
			if found {
				t.setSynced(true)
				t.encodeAck()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		frame, n, status := scanHead(data)
		if status == scanShort {
			break
		}
		if status == scanResync {
			t.setSynced(false)
			continue
		}
		data = data[n:]

		expected := uint8(atomic.LoadUint32(&t.nextSeq))
		if frame.Sequence == MessageDest && expected != MessageDest {
			// Host restarted its sequence
			atomic.StoreUint32(&t.nextSeq, MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if frame.Sequence == expected {
			atomic.StoreUint32(&t.nextSeq, uint32(NextSequence(expected)))
			t.dispatch(frame.Payload)
		}
		// Out of sequence frames still get an ack, which acts as a nak
		t.encodeAck()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs every message of a payload in order
func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynced(false)
		}
	}()

	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.setSynced(false)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			if t.errorCallback != nil {
				t.errorCallback(uint16(id), err)
			}
			return
		}
	}
}

// encodeAck writes an empty frame carrying the next expected sequence and
// flushes it ahead of any response.
func (t *Transport) encodeAck() {
	var buf [MessageLengthMin]byte
	t.output.Output(AppendFrame(buf[:0], uint8(atomic.LoadUint32(&t.nextSeq)), nil))
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by body
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(atomic.LoadUint32(&t.nextSeq))})
	body(t.output)
	t.output.Update(start, uint8(len(t.output.DataSince(start))+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}

// SendCommand writes a single message frame
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state after a link drop
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.synced, 1)
	atomic.StoreUint32(&t.nextSeq, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback is called when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback is called after every ack so it reaches the host first
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback is called when a handler rejects its arguments. The
// rest of that frame is dropped.
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}

func (t *Transport) isSynced() bool {
	return atomic.LoadUint32(&t.synced) != 0
}

func (t *Transport) setSynced(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&t.synced, n)
}
