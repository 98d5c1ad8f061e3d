// Package protocol implements the framed serial protocol spoken between the
// servo firmware and its host tools.
//
// Every frame is
//
//	len seq payload... crc_hi crc_lo 0x7E
//
// where len counts the whole frame, seq is 0x10|n, and the payload is a
// sequence of VLQ encoded message ids and arguments. A frame with an empty
// payload is an acknowledgement carrying the next expected sequence.
package protocol

import "errors"

// Version of the servo firmware protocol
const Version = "0.3.0"

// Frame layout
const (
	MessageMax         = 512 // Output scratch capacity
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// Frame is one validated frame pulled out of a byte stream
type Frame struct {
	Sequence uint8
	Payload  []byte // Aliases the scanned buffer
}

// scanStatus is the result of looking at the head of a stream
type scanStatus uint8

const (
	scanFrame   scanStatus = iota // A complete frame was found
	scanShort                     // More bytes are needed
	scanResync                    // Garbage at the head; drop sync and search
)

// scanHead looks for a frame at the start of data. Leading sync bytes must
// already have been skipped. On scanFrame it also returns the frame length.
func scanHead(data []byte) (Frame, int, scanStatus) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, scanShort
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Frame{}, 0, scanResync
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return Frame{}, 0, scanResync
	}
	if len(data) < n {
		return Frame{}, 0, scanShort
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return Frame{}, 0, scanResync
	}
	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return Frame{}, 0, scanResync
	}
	return Frame{
		Sequence: seq,
		Payload:  data[MessageHeaderSize : n-MessageTrailerSize],
	}, n, scanFrame
}

var (
	ErrFrameShort   = errors.New("frame truncated")
	ErrFrameInvalid = errors.New("frame invalid")
)

// ParseFrame validates the frame at the head of data and returns it with
// its length. Tools that see whole captures use it; transports scan
// streams incrementally.
func ParseFrame(data []byte) (Frame, int, error) {
	frame, n, status := scanHead(data)
	switch status {
	case scanShort:
		return Frame{}, 0, ErrFrameShort
	case scanResync:
		return Frame{}, 0, ErrFrameInvalid
	}
	return frame, n, nil
}

// skipToSync drops bytes up to and including the next sync byte. It
// reports whether a sync byte was found.
func skipToSync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// NextSequence returns the sequence that follows seq
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// AppendFrame wraps payload into a complete frame
func AppendFrame(dst []byte, seq uint8, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, uint8(len(payload)+MessageLengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), MessageValueSync)
}
