// Package transform implements the single-byte XOR involution applied to
// payloads stored inside installer bundles.
package transform

import "io"

// DefaultKey is used when configuration does not override the key.
const DefaultKey byte = 0x5a

// Apply returns a new slice where every byte is XORed with key.
// Apply(Apply(b, k), k) is always equal to b.
func Apply(b []byte, key byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ key
	}
	return out
}

// InPlace XORs b with key without allocating.
func InPlace(b []byte, key byte) {
	for i := range b {
		b[i] ^= key
	}
}

type writer struct {
	w   io.Writer
	key byte
	buf []byte
}

// NewWriter returns a writer that transforms bytes before passing them to w.
// The caller's slices are never modified.
func NewWriter(w io.Writer, key byte) io.Writer {
	return &writer{w: w, key: key}
}

func (x *writer) Write(p []byte) (int, error) {
	if cap(x.buf) < len(p) {
		x.buf = make([]byte, len(p))
	}
	buf := x.buf[:len(p)]
	copy(buf, p)
	InPlace(buf, x.key)
	return x.w.Write(buf)
}
