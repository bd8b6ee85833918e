// Package logrouter writes samples to hourly rotated log files.
//
// Layout: <root>/DQLOG-<YYYYMMDD>/DQ-<YYYYMMDD>-<HHMMSS>-<rate>-<devices>.txt
// with one line "<serial number>, <payload>" per sample. Closed files are never
// touched again, an uploader picks them up after the hour is over.
// In echo mode the raw frame is printed instead and nothing is persisted.
package logrouter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/womat/debug"

	"dqlog/pkg/paro"
)

const (
	dirLayout  = "DQLOG-20060102"
	fileLayout = "DQ-20060102-150405"
)

// Router routes samples to the log file of the current UTC hour.
type Router struct {
	sync.Mutex

	root    string
	rate    int
	devices int
	clock   clock.Clock
	// echo receives the samples in test mode instead of a file.
	echo io.Writer

	file *os.File
	w    *bufio.Writer
	path string
	// hour is the rotation key of the open file.
	hour   time.Time
	closed bool
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for rotation.
func WithClock(c clock.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithEcho switches to test mode: samples are written to w and no file is created.
func WithEcho(w io.Writer) Option {
	return func(r *Router) { r.echo = w }
}

// New returns a Router for a session of devices sampling at rate Hz, writing below root.
func New(root string, rate, devices int, opts ...Option) *Router {
	r := &Router{
		root:    root,
		rate:    rate,
		devices: devices,
		clock:   clock.New(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route appends the payload of the streamed sample frame of device id.
// A file is opened on the first call and replaced when the UTC hour changes,
// before the line is written.
func (r *Router) Route(id string, frame []byte) error {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return os.ErrClosed
	}

	if r.echo != nil {
		_, err := fmt.Fprintf(r.echo, "%s, %s\n", id, bytes.TrimRight(frame, "\r\n"))
		return err
	}

	now := r.clock.Now().UTC()
	if hour := now.Truncate(time.Hour); r.file == nil || !hour.Equal(r.hour) {
		if err := r.rotate(now, hour); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(r.w, "%s, %s\n", id, paro.Payload(frame))
	return err
}

// Path returns the path of the open log file.
func (r *Router) Path() string {
	r.Lock()
	defer r.Unlock()
	return r.path
}

// Flush writes buffered lines to the open file.
func (r *Router) Flush() error {
	r.Lock()
	defer r.Unlock()

	if r.w == nil {
		return nil
	}
	return r.w.Flush()
}

// Close closes the open file. Later calls and routes fail with os.ErrClosed.
func (r *Router) Close() error {
	r.Lock()
	defer r.Unlock()

	if r.closed {
		return os.ErrClosed
	}
	r.closed = true
	return r.closeFile()
}

// rotate closes the current file and opens the file of hour.
func (r *Router) rotate(now, hour time.Time) error {
	if err := r.closeFile(); err != nil {
		debug.ErrorLog.Printf("closing log file %s: %v", r.path, err)
	}

	dir := filepath.Join(r.root, now.Format(dirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	name := fmt.Sprintf("%s-%d-%d.txt", now.Format(fileLayout), r.rate, r.devices)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	debug.InfoLog.Printf("opening log file: %s", path)
	r.file = f
	r.w = bufio.NewWriter(f)
	r.path = path
	r.hour = hour
	return nil
}

func (r *Router) closeFile() error {
	if r.file == nil {
		return nil
	}

	err := r.w.Flush()
	if e := r.file.Close(); err == nil {
		err = e
	}

	debug.InfoLog.Printf("closed log file: %s", r.path)
	r.file = nil
	r.w = nil
	return err
}
