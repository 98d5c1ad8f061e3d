package protocol

import (
	"errors"
	"net"
	"testing"
	"time"
)

type received struct {
	id   uint16
	args []uint32
}

// recordingHandler decodes n arguments for every message
func recordingHandler(got *[]received, n int) CommandHandler {
	return func(id uint16, data *[]byte) error {
		args := make([]uint32, n)
		ptrs := make([]*uint32, n)
		for i := range args {
			ptrs[i] = &args[i]
		}
		if err := DecodeArgs(data, ptrs...); err != nil {
			return err
		}
		*got = append(*got, received{id, args})
		return nil
	}
}

func commandFrame(seq uint8, id uint16, args ...uint32) []byte {
	out := NewScratchOutput()
	EncodeVLQUint(out, uint32(id))
	EncodeArgs(out, args...)
	return AppendFrame(nil, seq, out.Result())
}

func lastAck(t *testing.T, out []byte) uint8 {
	t.Helper()
	var seq uint8
	found := false
	for len(out) > 0 {
		frame, n, status := scanHead(out)
		if status != scanFrame {
			t.Fatalf("output is not a frame stream: %v", out)
		}
		if len(frame.Payload) == 0 {
			seq = frame.Sequence
			found = true
		}
		out = out[n:]
	}
	if !found {
		t.Fatal("no ack in output")
	}
	return seq
}

func TestTransportDispatchesInSequence(t *testing.T) {
	var got []received
	out := NewScratchOutput()
	tr := NewTransport(out, recordingHandler(&got, 2))

	id := MustMessageID("servo_write")
	tr.Receive(NewSliceInputBuffer(commandFrame(0x10, id, 2, 90)))

	if len(got) != 1 || got[0].id != id || got[0].args[0] != 2 || got[0].args[1] != 90 {
		t.Fatalf("dispatched %+v", got)
	}
	if seq := lastAck(t, out.Result()); seq != 0x11 {
		t.Errorf("ack seq = 0x%02x, want 0x11", seq)
	}
}

func TestTransportNaksOutOfSequence(t *testing.T) {
	var got []received
	out := NewScratchOutput()
	tr := NewTransport(out, recordingHandler(&got, 2))

	id := MustMessageID("servo_pulse")
	tr.Receive(NewSliceInputBuffer(commandFrame(0x10, id, 0, 1500)))
	out.Reset()
	tr.Receive(NewSliceInputBuffer(commandFrame(0x15, id, 0, 1000)))

	if len(got) != 1 {
		t.Errorf("out of sequence frame was dispatched: %+v", got)
	}
	if seq := lastAck(t, out.Result()); seq != 0x11 {
		t.Errorf("nak seq = 0x%02x, want 0x11", seq)
	}
}

func TestTransportResyncsAfterGarbage(t *testing.T) {
	var got []received
	out := NewScratchOutput()
	tr := NewTransport(out, recordingHandler(&got, 1))

	id := MustMessageID("servo_attach")
	stream := []byte{0x02, 0x10, 0x01, 0x02, 0x03, MessageValueSync}
	stream = append(stream, commandFrame(0x10, id, 4)...)
	tr.Receive(NewSliceInputBuffer(stream))

	if len(got) != 1 || got[0].args[0] != 4 {
		t.Fatalf("dispatched %+v after garbage", got)
	}
}

func TestTransportCorruptCRC(t *testing.T) {
	var got []received
	tr := NewTransport(NewScratchOutput(), recordingHandler(&got, 1))

	frame := commandFrame(0x10, MustMessageID("servo_detach"), 1)
	frame[len(frame)-2] ^= 0xFF
	tr.Receive(NewSliceInputBuffer(frame))

	if len(got) != 0 {
		t.Errorf("frame with bad CRC was dispatched: %+v", got)
	}
}

func TestTransportPartialFrame(t *testing.T) {
	var got []received
	tr := NewTransport(NewScratchOutput(), recordingHandler(&got, 1))

	frame := commandFrame(0x10, MustMessageID("servo_query"), 7)
	fifo := NewFifoBuffer(128)
	fifo.Write(frame[:3])
	tr.Receive(fifo)
	if len(got) != 0 || fifo.Available() != 3 {
		t.Fatalf("partial frame consumed: got %+v, %d bytes left", got, fifo.Available())
	}
	fifo.Write(frame[3:])
	tr.Receive(fifo)
	if len(got) != 1 || fifo.Available() != 0 {
		t.Errorf("completed frame: got %+v, %d bytes left", got, fifo.Available())
	}
}

func TestTransportHandlerError(t *testing.T) {
	var failed uint16 = 0xFFFF
	tr := NewTransport(NewScratchOutput(), func(id uint16, data *[]byte) error {
		return errors.New("bad args")
	})
	tr.SetErrorCallback(func(id uint16, err error) { failed = id })

	id := MustMessageID("servo_attach")
	tr.Receive(NewSliceInputBuffer(commandFrame(0x10, id, 0)))
	if failed != id {
		t.Errorf("error callback saw id %d, want %d", failed, id)
	}
}

// fakeFirmware answers servo_query with a servo_state over conn
func fakeFirmware(conn net.Conn) {
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		var ch uint32
		if err := DecodeArgs(data, &ch); err != nil {
			return err
		}
		if id == MustMessageID("servo_query") {
			tr.SendCommand(MustMessageID("servo_state"), func(o OutputBuffer) {
				EncodeArgs(o, ch, 1, 1, 90, 1500, 500, 2500)
			})
		}
		return nil
	})

	fifo := NewFifoBuffer(256)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		fifo.Write(buf[:n])
		tr.Receive(fifo)
		if res := out.Result(); len(res) > 0 {
			if _, err := conn.Write(append([]byte(nil), res...)); err != nil {
				return
			}
			out.Reset()
		}
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostSide, mcuSide := net.Pipe()
	go fakeFirmware(mcuSide)
	defer mcuSide.Close()

	host := NewHostTransport(hostSide)
	defer host.Close()

	for i := 0; i < 20; i++ {
		err := host.SendCommand(MustMessageID("servo_query"), func(o OutputBuffer) {
			EncodeVLQUint(o, uint32(i%8))
		})
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		msg, err := host.WaitFor(MustMessageID("servo_state"), time.Second)
		if err != nil {
			t.Fatalf("state %d: %v", i, err)
		}
		var ch uint32
		args := msg.Args
		if err := DecodeArgs(&args, &ch); err != nil || ch != uint32(i%8) {
			t.Errorf("state %d: channel %d, err %v", i, ch, err)
		}
	}

	// Sequence wraps through all sixteen values
	if seq := host.Sequence(); seq != NextSequence(0x13) {
		t.Errorf("sequence after 20 commands = 0x%02x, want 0x14", seq)
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostSide, mcuSide := net.Pipe()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := mcuSide.Read(buf); err != nil {
				return
			}
		}
	}()
	defer mcuSide.Close()

	host := NewHostTransport(hostSide)
	defer host.Close()

	err := host.SendCommandWithTimeout(MustMessageID("get_clock"), nil, 20*time.Millisecond)
	if !errors.Is(err, ErrAckTimeout) {
		t.Errorf("got %v, want ErrAckTimeout", err)
	}
}

func TestMessageTable(t *testing.T) {
	if id, _ := MessageID("identify_response"); id != 0 {
		t.Errorf("identify_response id = %d, want 0", id)
	}
	if id, _ := MessageID("identify"); id != 1 {
		t.Errorf("identify id = %d, want 1", id)
	}
	if _, ok := MessageID("no_such_message"); ok {
		t.Error("unknown message resolved")
	}

	state := Messages[MustMessageID("servo_state")]
	names := state.ParamNames()
	want := []string{"channel", "valid", "attached", "degrees", "pulse_us", "min_us", "max_us"}
	if len(names) != len(want) {
		t.Fatalf("servo_state params = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("param %d = %q, want %q", i, names[i], want[i])
		}
	}
}
