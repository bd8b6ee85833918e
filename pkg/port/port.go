// Package port holds the definition of a physical serial port
package port

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/womat/debug"
)

const (
	// BaudRate is the fixed line speed of the barometers.
	BaudRate = 115200
	// ProbeTimeout is long enough to wake up a barometer and get a config response.
	ProbeTimeout = 100 * time.Millisecond
)

var (
	ErrNoPorts = errors.New("no usbserial ports found")
	ErrClosed  = errors.New("port closed")
)

// DefaultPatterns are the device paths searched for usb serial adapters.
//  linux: /dev/tty* containing USB (FTDI, CDC-ACM)
//  darwin: /dev/cu.usbserial*
var DefaultPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/cu.usbserial*",
}

// Conn is a serial connection with a changeable read timeout.
// A Read that times out returns 0 bytes and io.EOF.
type Conn interface {
	io.ReadWriteCloser
	// Name returns the device path of the connection.
	Name() string
	// SetReadTimeout changes the maximum wait of a single Read.
	SetReadTimeout(time.Duration) error
}

// Opener opens a named port with the given read timeout.
type Opener func(name string, timeout time.Duration) (Conn, error)

// Serial is a Conn on a physical port, 8 data bits, no parity, 1 stop bit.
type Serial struct {
	sync.Mutex
	config serial.Config
	port   *serial.Port
}

// Open opens the serial port name with BaudRate and the read timeout.
// The timeout is rounded down to the driver resolution of 100ms (minimum 100ms).
func Open(name string, timeout time.Duration) (Conn, error) {
	s := &Serial{
		config: serial.Config{
			Name:        name,
			Baud:        BaudRate,
			Size:        serial.DefaultSize,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: timeout,
		},
	}

	p, err := serial.OpenPort(&s.config)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}

	s.port = p
	return s, nil
}

// Name returns the device path.
func (s *Serial) Name() string {
	return s.config.Name
}

// Read reads from the port, at most one read timeout long.
func (s *Serial) Read(b []byte) (int, error) {
	s.Lock()
	p := s.port
	s.Unlock()

	if p == nil {
		return 0, ErrClosed
	}
	return p.Read(b)
}

// Write writes b to the port.
func (s *Serial) Write(b []byte) (int, error) {
	s.Lock()
	p := s.port
	s.Unlock()

	if p == nil {
		return 0, ErrClosed
	}
	return p.Write(b)
}

// SetReadTimeout reopens the port with a new read timeout.
// tarm/serial fixes the termios timeout at open time, the device keeps its state across the reopen.
func (s *Serial) SetReadTimeout(timeout time.Duration) error {
	s.Lock()
	defer s.Unlock()

	if s.config.ReadTimeout == timeout {
		return nil
	}
	if s.port == nil {
		return ErrClosed
	}

	if err := s.port.Close(); err != nil {
		debug.WarningLog.Printf("closing %s before reopen: %v", s.config.Name, err)
	}
	s.port = nil

	s.config.ReadTimeout = timeout
	p, err := serial.OpenPort(&s.config)
	if err != nil {
		return fmt.Errorf("reopen serial %s: %w", s.config.Name, err)
	}

	s.port = p
	return nil
}

// Close closes the port, further calls return nil.
func (s *Serial) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.port == nil {
		return nil
	}

	err := s.port.Close()
	s.port = nil
	return err
}

// Enumerate returns the sorted, de-duplicated device paths matching patterns.
func Enumerate(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var ports []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid port pattern %q: %w", pattern, err)
		}

		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}

	if len(ports) == 0 {
		return nil, ErrNoPorts
	}

	sort.Strings(ports)
	return ports, nil
}
