// Package porttest provides an in-memory serial port for tests.
package porttest

import (
	"io"
	"strings"
	"sync"
	"time"

	"dqlog/pkg/port"
)

// Port is a scripted port.Conn.
// Reads are served from a queue of chunks; a nil chunk or an empty queue is a read timeout.
type Port struct {
	mu      sync.Mutex
	name    string
	queue   [][]byte
	written []string
	timeout time.Duration
	closed  bool

	// Respond is called for every written line (without the line terminator)
	// and returns the chunks to queue as the answer.
	Respond func(line string) [][]byte
	// Source is called when the queue is empty, a nil result is a read timeout.
	Source func() []byte
}

// New returns an open port.
func New(name string) *Port {
	return &Port{name: name}
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// Queue appends chunks to the read queue.
func (p *Port) Queue(chunks ...[]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, chunks...)
}

// QueueString queues s as a single chunk.
func (p *Port) QueueString(s string) {
	p.Queue([]byte(s))
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, port.ErrClosed
	}

	if len(p.queue) == 0 {
		if p.Source == nil {
			return 0, io.EOF
		}
		c := p.Source()
		if c == nil {
			return 0, io.EOF
		}
		p.queue = append(p.queue, c)
	}

	c := p.queue[0]
	p.queue = p.queue[1:]
	if c == nil {
		return 0, io.EOF
	}

	n := copy(b, c)
	if n < len(c) {
		p.queue = append([][]byte{c[n:]}, p.queue...)
	}
	return n, nil
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, port.ErrClosed
	}

	line := strings.TrimRight(string(b), "\r\n")
	p.written = append(p.written, line)

	if p.Respond != nil {
		p.queue = append(p.queue, p.Respond(line)...)
	}
	return len(b), nil
}

// SetReadTimeout records the timeout.
func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	return nil
}

// Timeout returns the last timeout set.
func (p *Port) Timeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeout
}

// Close marks the port closed.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Written returns the lines written so far.
func (p *Port) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.written...)
}

// Count returns how often line was written.
func (p *Port) Count(line string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, w := range p.written {
		if w == line {
			n++
		}
	}
	return n
}

// Opener returns a port.Opener serving the given ports by name.
// Unknown names fail with io.ErrUnexpectedEOF.
func Opener(ports ...*Port) port.Opener {
	m := map[string]*Port{}
	for _, p := range ports {
		m[p.name] = p
	}

	return func(name string, timeout time.Duration) (port.Conn, error) {
		p, ok := m[name]
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		_ = p.SetReadTimeout(timeout)
		return p, nil
	}
}
