// Package tinycompress writes zlib streams using stored (uncompressed)
// DEFLATE blocks. The output is readable by any zlib decoder, and the
// writer needs no tables, which keeps it small on a microcontroller.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

// maxStored is the largest payload of one stored DEFLATE block
const maxStored = 0xFFFF

var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written and emits the stream on Close
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter creates a zlib writer. sizeHint preallocates the buffer so
// Write does not grow it.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{output: w, buf: make([]byte, 0, sizeHint)}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	out := make([]byte, 0, len(w.buf)+len(w.buf)/maxStored*5+11)
	out = append(out, 0x78, 0x01)

	data := w.buf
	for {
		n := len(data)
		final := byte(1)
		if n > maxStored {
			n = maxStored
			final = 0
		}
		length := uint16(n)
		out = append(out, final, byte(length), byte(length>>8), byte(^length), byte(^length>>8))
		out = append(out, data[:n]...)
		data = data[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(w.buf)
	out = append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
	_, err := w.output.Write(out)
	return err
}

// Compress returns the zlib stream of data
func Compress(data []byte) []byte {
	var out sliceWriter
	w := NewWriter(&out, len(data))
	w.Write(data)
	w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
