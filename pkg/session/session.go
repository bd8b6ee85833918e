// Package session runs the continuous sampling of a set of barometers.
//
// All devices are served by one loop. Each read is bounded by the read timeout
// of its device, so a silent device delays an iteration by at most one timeout
// and never blocks the others. A device that stays silent for a read is sent
// the start command again in the same iteration.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/womat/debug"
	"go.uber.org/multierr"

	"dqlog/pkg/paro"
)

const (
	// Starting sends the start command and waits for the first sample of every device.
	Starting State = iota
	// Streaming reads one frame per device and iteration.
	Streaming
	// Recovering is the state of a device that missed a sample, until its next sample.
	Recovering
	// ShuttingDown stops and closes the devices and the log.
	ShuttingDown
	// Stopped is terminal.
	Stopped
)

// State is the state of the session or of a single device.
type State int

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Streaming:
		return "streaming"
	case Recovering:
		return "recovering"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name, e.g. for the json status.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Router receives the samples.
type Router interface {
	Route(id string, frame []byte) error
	Flush() error
	Close() error
}

// Sample is one value received from a device.
type Sample struct {
	SerialNumber string
	Payload      string
	Time         time.Time
}

// DeviceStatus holds the counters of one device.
type DeviceStatus struct {
	SerialNumber string
	Port         string
	SampleRate   int
	State        State
	Samples      uint64
	Timeouts     uint64
	Restarts     uint64
	LastPayload  string
	LastSample   time.Time
	LastError    string
}

// Status is a snapshot of the session.
type Status struct {
	State      State
	Iterations uint64
	Devices    []DeviceStatus
}

// Session owns the devices after discovery.
type Session struct {
	devices []*paro.Device
	router  Router

	clock       clock.Clock
	stopCommand string
	settle      time.Duration
	observers   []func(Sample)

	mu         sync.RWMutex
	state      State
	iterations uint64
	status     []DeviceStatus

	shutdown sync.Once
	err      error
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock for sample timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithStopCommand sets the command code sent to halt continuous sampling.
func WithStopCommand(code string) Option {
	return func(s *Session) { s.stopCommand = code }
}

// WithSettleDelay sets the pause after stopping a device.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

// WithObserver registers f to be called with every routed sample.
// f runs in the sampling loop and must not block.
func WithObserver(f func(Sample)) Option {
	return func(s *Session) { s.observers = append(s.observers, f) }
}

// New returns a session for devices in fixed round-robin order.
func New(devices []*paro.Device, router Router, opts ...Option) *Session {
	s := &Session{
		devices:     devices,
		router:      router,
		clock:       clock.New(),
		stopCommand: paro.DefaultStopCommand,
		settle:      100 * time.Millisecond,
		state:       Starting,
		status:      make([]DeviceStatus, len(devices)),
	}

	for i, d := range devices {
		s.status[i] = DeviceStatus{
			SerialNumber: d.SerialNumber,
			Port:         d.Port(),
			SampleRate:   d.SampleRate,
			State:        Starting,
		}
	}

	for _, o := range opts {
		o(s)
	}
	return s
}

// Run starts sampling and loops until ctx is done, then shuts down.
// The cancellation of ctx is checked between iterations.
func (s *Session) Run(ctx context.Context) error {
	if s.start(ctx) {
		debug.InfoLog.Print("running...quit with ctrl-C")
		for ctx.Err() == nil {
			s.Step()
		}
	}

	debug.InfoLog.Print("quitting...")
	return s.Shutdown()
}

// start sends the start command to every device and waits for the first sample of each.
// The wait has no timeout, it reports false if ctx is done before all devices sample.
func (s *Session) start(ctx context.Context) bool {
	s.setState(Starting)

	for i, d := range s.devices {
		if err := d.Start(); err != nil {
			debug.ErrorLog.Printf("%s: start continuous sampling: %v", d, err)
			s.setError(i, err)
		}
	}

	for i, d := range s.devices {
		for {
			if ctx.Err() != nil {
				return false
			}

			f, err := d.ReadFrame()
			if err != nil {
				debug.ErrorLog.Printf("%s: %v", d, err)
				s.setError(i, err)
				time.Sleep(paro.ReadTimeout(d.SampleRate))
				continue
			}
			if len(f) == 0 {
				debug.DebugLog.Printf("%s, WAITING FOR DATA", d)
				continue
			}

			debug.DebugLog.Printf("%s, first sample %s", d, paro.Payload(f))
			s.setDeviceState(i, Streaming)
			break
		}
	}

	s.setState(Streaming)
	return true
}

// Step reads one frame of every device.
// A frame is routed under the serial number of the device, a missing frame
// restarts continuous sampling of that device.
func (s *Session) Step() {
	for i, d := range s.devices {
		f, err := d.ReadFrame()
		if err != nil {
			debug.ErrorLog.Printf("%s: %v", d, err)
			s.setError(i, err)
		}

		if len(f) == 0 {
			s.recover(i, d)
			continue
		}

		sample := Sample{
			SerialNumber: d.SerialNumber,
			Payload:      paro.Payload(f),
			Time:         s.clock.Now(),
		}
		debug.TraceLog.Printf("%s, %s", sample.SerialNumber, sample.Payload)

		if err = s.router.Route(sample.SerialNumber, f); err != nil {
			debug.ErrorLog.Printf("log sample of %s: %v", d, err)
		}

		s.record(i, sample)
		for _, o := range s.observers {
			o(sample)
		}
	}

	if err := s.router.Flush(); err != nil {
		debug.ErrorLog.Printf("flush log: %v", err)
	}

	s.mu.Lock()
	s.iterations++
	s.mu.Unlock()
}

// recover assumes power loss or a cable glitch and restarts continuous sampling.
// There is no backoff, the device is retried every iteration.
func (s *Session) recover(i int, d *paro.Device) {
	debug.WarningLog.Printf("%s, NO DATA", d)

	s.mu.Lock()
	s.status[i].State = Recovering
	s.status[i].Timeouts++
	s.status[i].Restarts++
	s.mu.Unlock()

	if err := d.Start(); err != nil {
		debug.ErrorLog.Printf("%s: restart continuous sampling: %v", d, err)
		s.setError(i, err)
	}
}

// Shutdown stops and closes every device, even if some fail, and closes the router.
// Only the first call has an effect, later calls return the same result.
func (s *Session) Shutdown() error {
	s.shutdown.Do(func() {
		s.setState(ShuttingDown)

		for i, d := range s.devices {
			if err := d.Stop(s.stopCommand); err != nil {
				debug.ErrorLog.Printf("%s: stop continuous sampling: %v", d, err)
				s.err = multierr.Append(s.err, err)
			}
			if s.settle > 0 {
				time.Sleep(s.settle)
			}
			if err := d.Close(); err != nil {
				s.err = multierr.Append(s.err, err)
			}
			s.setDeviceState(i, Stopped)
		}

		s.err = multierr.Append(s.err, s.router.Close())
		s.setState(Stopped)
	})

	return s.err
}

// State returns the session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot of the session and device counters.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		State:      s.state,
		Iterations: s.iterations,
		Devices:    append([]DeviceStatus(nil), s.status...),
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Session) setDeviceState(i int, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[i].State = st
}

func (s *Session) setError(i int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[i].LastError = err.Error()
}

func (s *Session) record(i int, sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.status[i]
	st.State = Streaming
	st.Samples++
	st.LastPayload = sample.Payload
	st.LastSample = sample.Time
}
