package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// EncodeVLQInt writes v most significant group first, seven bits per byte.
// Small negative values stay short because the first byte sign extends
// from bit 5.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	n := 0
	if v < -(1<<26) || v >= 3<<26 {
		buf[n] = byte(v>>28)&0x7F | 0x80
		n++
	}
	if v < -(1<<19) || v >= 3<<19 {
		buf[n] = byte(v>>21)&0x7F | 0x80
		n++
	}
	if v < -(1<<12) || v >= 3<<12 {
		buf[n] = byte(v>>14)&0x7F | 0x80
		n++
	}
	if v < -(1<<5) || v >= 3<<5 {
		buf[n] = byte(v>>7)&0x7F | 0x80
		n++
	}
	buf[n] = byte(v) & 0x7F
	output.Output(buf[:n+1])
}

// EncodeVLQUint writes an unsigned value; it shares the signed encoding
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value and advances data past it
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads one unsigned value and advances data past it
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length prefixed byte string
func EncodeVLQBytes(output OutputBuffer, b []byte) {
	EncodeVLQUint(output, uint32(len(b)))
	output.Output(b)
}

// DecodeVLQBytes reads a length prefixed byte string. The result aliases
// data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrBufferTooSmall
	}
	b := (*data)[:n]
	*data = (*data)[n:]
	return b, nil
}

// DecodeArgs reads len(dst) unsigned values in order
func DecodeArgs(data *[]byte, dst ...*uint32) error {
	for _, p := range dst {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// EncodeArgs writes unsigned values in order
func EncodeArgs(output OutputBuffer, args ...uint32) {
	for _, v := range args {
		EncodeVLQUint(output, v)
	}
}
