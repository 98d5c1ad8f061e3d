package protocol

import (
	"bytes"
	"testing"
)

func TestCRC16(t *testing.T) {
	tests := []struct {
		data []byte
		want uint16
	}{
		{nil, 0xFFFF},
		{[]byte("123456789"), 0x6F91},
		{[]byte{5, MessageDest}, 0x9E81},
	}
	for _, tt := range tests {
		if got := CRC16(tt.data); got != tt.want {
			t.Errorf("CRC16(%v) = 0x%04X, want 0x%04X", tt.data, got, tt.want)
		}
	}
}

func TestVLQEncodeDecodeInt(t *testing.T) {
	values := []int32{
		0, 1, -1, 31, -32, 95, 96, 127, -127, 128, -128,
		180, 255, 500, 1500, 2500, 20000, -20000,
		1 << 20, 3<<26 - 1, 3 << 26, -(1 << 26) - 1,
		2147483647, -2147483648,
	}
	for _, want := range values {
		out := NewScratchOutput()
		EncodeVLQInt(out, want)
		encoded := append([]byte(nil), out.Result()...)
		if len(encoded) > 5 {
			t.Errorf("%d encoded to %d bytes", want, len(encoded))
		}

		data := encoded
		got, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("decode %d (%v): %v", want, encoded, err)
			continue
		}
		if got != want {
			t.Errorf("decode %v = %d, want %d", encoded, got, want)
		}
		if len(data) != 0 {
			t.Errorf("decode %d left %d bytes", want, len(data))
		}
	}
}

func TestVLQUintSmallValuesOneByte(t *testing.T) {
	for _, v := range []uint32{0, 1, 7, 95} {
		out := NewScratchOutput()
		EncodeVLQUint(out, v)
		if n := len(out.Result()); n != 1 {
			t.Errorf("%d encoded to %d bytes, want 1", v, n)
		}
	}
	out := NewScratchOutput()
	EncodeVLQUint(out, 2500)
	if n := len(out.Result()); n != 2 {
		t.Errorf("2500 encoded to %d bytes, want 2", n)
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("truncated VLQ: got %v, want ErrBufferTooSmall", err)
	}
	empty := []byte{}
	if _, err := DecodeVLQUint(&empty); err != ErrBufferTooSmall {
		t.Errorf("empty VLQ: got %v, want ErrBufferTooSmall", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("six byte VLQ: got %v, want ErrInvalidVLQ", err)
	}
}

func TestVLQBytes(t *testing.T) {
	for _, want := range [][]byte{{}, {0x01}, {0xFF, 0xFE, 0xFD}, make([]byte, 50)} {
		out := NewScratchOutput()
		EncodeVLQBytes(out, want)
		data := out.Result()
		got, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("decode %d bytes: %v", len(want), err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("bytes round trip: got %v, want %v", got, want)
		}
	}

	short := []byte{5, 1, 2}
	if _, err := DecodeVLQBytes(&short); err != ErrBufferTooSmall {
		t.Errorf("short byte string: got %v, want ErrBufferTooSmall", err)
	}
}

func TestArgs(t *testing.T) {
	out := NewScratchOutput()
	EncodeArgs(out, 3, 1, 90, 1500, 544, 2400)
	data := out.Result()

	var ch, attached, deg, pulse, lo, hi uint32
	if err := DecodeArgs(&data, &ch, &attached, &deg, &pulse, &lo, &hi); err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	if ch != 3 || attached != 1 || deg != 90 || pulse != 1500 || lo != 544 || hi != 2400 {
		t.Errorf("DecodeArgs = %d %d %d %d %d %d", ch, attached, deg, pulse, lo, hi)
	}

	var extra uint32
	if err := DecodeArgs(&data, &extra); err == nil {
		t.Error("DecodeArgs past the end should fail")
	}
}
