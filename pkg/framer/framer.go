// Package framer splits a serial byte stream into newline terminated frames.
//
// A serial read returns whatever arrived within the port read timeout, so one
// response may be spread over several reads and one read may hold the tail of
// a frame and the start of the next one. Reader keeps the surplus bytes for the
// following call.
package framer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// chunkSize is the maximum size of a single read.
	chunkSize = 2048
	// DefaultLimit is the maximum number of bytes buffered without a terminator.
	DefaultLimit = 64 * 1024
)

var ErrFrameTooLong = errors.New("frame exceeds buffer limit")

// Reader reads frames from an underlying reader with a read timeout.
// A read returning no data (0 bytes or io.EOF) is a timeout.
type Reader struct {
	rd    io.Reader
	buf   []byte
	chunk []byte
	limit int
}

// New returns a Reader on rd with DefaultLimit.
func New(rd io.Reader) *Reader {
	return &Reader{
		rd:    rd,
		chunk: make([]byte, chunkSize),
		limit: DefaultLimit,
	}
}

// SetLimit changes the maximum number of buffered bytes without a terminator.
func (r *Reader) SetLimit(n int) {
	r.limit = n
}

// ReadFrame returns the next frame including the trailing '\n'.
// It returns an empty frame and a nil error if the read timeout elapses before
// a terminator is seen; the partial data stays buffered.
// A non-nil error means the connection itself failed.
func (r *Reader) ReadFrame() ([]byte, error) {
	if f := r.next(0); f != nil {
		return f, nil
	}

	for {
		n, err := r.rd.Read(r.chunk)
		if n > 0 {
			start := len(r.buf)
			r.buf = append(r.buf, r.chunk[:n]...)
			if f := r.next(start); f != nil {
				return f, nil
			}

			if r.limit > 0 && len(r.buf) > r.limit {
				dropped := len(r.buf)
				r.buf = r.buf[:0]
				return nil, fmt.Errorf("%w: %d bytes dropped", ErrFrameTooLong, dropped)
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, io.EOF):
			return nil, nil
		default:
			return nil, err
		}
	}
}

// Buffered returns the number of bytes received but not yet returned.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Reset drops all buffered bytes.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
}

// next cuts the first frame from buf, searching from offset from.
func (r *Reader) next(from int) []byte {
	i := bytes.IndexByte(r.buf[from:], '\n')
	if i < 0 {
		return nil
	}

	i += from + 1
	f := make([]byte, i)
	copy(f, r.buf[:i])
	r.buf = r.buf[:copy(r.buf, r.buf[i:])]
	return f
}
