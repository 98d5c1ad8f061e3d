package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrTransportClosed = errors.New("transport stopped")
	ErrAckTimeout      = errors.New("ack timeout")
	ErrResponseTimeout = errors.New("response timeout")
)

// ResponseHandler sees every decoded response before it is queued
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a received frame with its message id split off
type Message struct {
	Sequence uint8
	ID       uint16
	Args     []byte // Remaining VLQ arguments
}

// HostTransport is the host side of the link: it frames commands, waits
// for the firmware's ack and queues responses.
type HostTransport struct {
	port    io.ReadWriteCloser
	seq     uint32 // atomic, sequence of the next command
	synced  bool   // reader goroutine only
	input   *FifoBuffer
	writeMu sync.Mutex

	acks      chan uint8
	responses chan *Message
	handler   atomic.Value // ResponseHandler

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewHostTransport starts reading from port in the background
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       MessageDest,
		synced:    true,
		input:     NewFifoBuffer(1024),
		acks:      make(chan uint8, 4),
		responses: make(chan *Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one message and waits up to two seconds for its ack
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends one message and waits for its ack
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	payload := scratch.Result()
	if len(payload)+MessageLengthMin > MessageLengthMax {
		return fmt.Errorf("message %d too long: %d bytes", cmdID, len(payload)+MessageLengthMin)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	seq := uint8(atomic.LoadUint32(&t.seq))
	frame := AppendFrame(make([]byte, 0, MessageLengthMax), seq, payload)
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return t.waitForAck(NextSequence(seq), timeout)
}

// waitForAck waits for the ack naming want as the next expected sequence.
// Stale acks from earlier frames are skipped.
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case got := <-t.acks:
			if got != want {
				continue
			}
			atomic.StoreUint32(&t.seq, uint32(want))
			return nil
		case <-deadline.C:
			return fmt.Errorf("%w after %v (want seq 0x%02x)", ErrAckTimeout, timeout, want)
		case <-t.stop:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next queued response
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case msg := <-t.responses:
		return msg, nil
	case <-deadline.C:
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stop:
		return nil, ErrTransportClosed
	}
}

// WaitFor returns the next response with the given id, discarding others
func (t *HostTransport) WaitFor(id uint16, timeout time.Duration) (*Message, error) {
	end := time.Now().Add(timeout)
	for {
		left := time.Until(end)
		if left <= 0 {
			return nil, fmt.Errorf("%w waiting for message %d", ErrResponseTimeout, id)
		}
		msg, err := t.ReceiveResponse(left)
		if err != nil {
			return nil, err
		}
		if msg.ID == id {
			return msg, nil
		}
	}
}

// SetResponseHandler installs a callback run from the reader goroutine
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handler.Store(handler)
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}

		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n > 0 {
			t.input.Write(buf[:n])
			t.process()
		}
	}
}

// process parses every complete frame in the input buffer
func (t *HostTransport) process() {
	data := t.input.Data()

	for len(data) > 0 {
		if !t.synced {
			data, t.synced = skipToSync(data)
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
			t.synced = false
			continue
		}
		data = data[n:]
		t.deliver(frame)
	}

	if consumed := t.input.Available() - len(data); consumed > 0 {
		t.input.Pop(consumed)
	}
}

// deliver routes acks and splits response payloads into messages
func (t *HostTransport) deliver(frame Frame) {
	if len(frame.Payload) == 0 {
		select {
		case t.acks <- frame.Sequence:
		default:
		}
		return
	}

	// Responses carry one message per frame
	payload := append([]byte(nil), frame.Payload...)
	id, err := DecodeVLQUint(&payload)
	if err != nil {
		return
	}
	msg := &Message{Sequence: frame.Sequence, ID: uint16(id), Args: payload}

	if h, ok := t.handler.Load().(ResponseHandler); ok && h != nil {
		args := msg.Args
		_ = h(msg.ID, &args)
	}
	select {
	case t.responses <- msg:
	default:
		// Drop the oldest so the newest state is kept
		select {
		case <-t.responses:
		default:
		}
		t.responses <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stop)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.done
	})
	return err
}

// Reset restarts the sequence and drops anything queued
func (t *HostTransport) Reset() {
	atomic.StoreUint32(&t.seq, MessageDest)
	for len(t.acks) > 0 {
		<-t.acks
	}
	for len(t.responses) > 0 {
		<-t.responses
	}
}

// Sequence returns the sequence the next command will use
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.seq))
}
