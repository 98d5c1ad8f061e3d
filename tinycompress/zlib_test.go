package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func inflate(t *testing.T, stream []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	return out
}

func TestCompressReadableByZlib(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte(`{"version":"0.3.0","config":{"SERVO_CHANNELS":"8"}}`),
		bytes.Repeat([]byte("servo_write channel=%c degrees=%hu\n"), 3000),
	}
	for _, in := range inputs {
		if got := inflate(t, Compress(in)); !bytes.Equal(got, in) {
			t.Errorf("round trip of %d bytes returned %d bytes", len(in), len(got))
		}
	}
}

func TestWriterAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 16)
	w.Write([]byte("abc"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.Write([]byte("d")); err != ErrClosed {
		t.Errorf("Write after Close: got %v, want ErrClosed", err)
	}
	if got := inflate(t, buf.Bytes()); string(got) != "abc" {
		t.Errorf("inflated %q", got)
	}
}
