package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Sum computes the hex-encoded SHA-256 digest of everything readable from r.
// The input is consumed incrementally, so r may be arbitrarily large.
// Read errors propagate unchanged.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes computes the hex-encoded SHA-256 digest of data.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Writer wraps a running digest so callers can hash bytes as they stream
// past, without a second read of the source.
type Writer struct {
	h hash.Hash
}

func NewWriter() *Writer {
	return &Writer{h: sha256.New()}
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (w *Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

var _ io.Writer = (*Writer)(nil)
