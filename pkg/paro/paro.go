// Package paro talks to Paroscientific DigiQuartz barometers over the
// line oriented command protocol.
//
// A command is "*<addr><CMD>" terminated by CRLF, e.g. "*0100MN". The answer
// is echoed with the reply address and the command code, e.g.
// "*0001MN=6000-16B-IS\r\n". Samples in continuous mode (P4) carry a shorter
// header in front of the pressure value.
package paro

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/womat/debug"

	"dqlog/pkg/framer"
	"dqlog/pkg/port"
)

const (
	// address is the destination prefix of every command (to 01 from 00).
	address = "*0100"
	// terminator is appended to every command.
	terminator = "\r\n"

	// responseHeader is the width of the echo in front of a command response.
	responseHeader = 8
	// sampleHeader is the width of the echo in front of a streamed sample.
	sampleHeader = 7
)

// command codes
const (
	CmdModel        = "MN"
	CmdSerialNumber = "SN"
	CmdFirmware     = "VR"
	CmdUnits        = "UN"
	CmdResolution   = "XM"
	CmdOutputMode   = "MD"
	CmdDigits       = "XN"
	CmdSampleRate   = "TH"
	CmdAntiAlias    = "IA"
	CmdTimestamps   = "TS"
	CmdGPS          = "GE"
	CmdTimeFormat   = "TJ"
	CmdDateTime     = "GR"
	CmdContinuous   = "P4"
	CmdEnableWrite  = "EW"
)

// DefaultStopCommand halts continuous sampling. The barometer ends P4 output
// on any valid command; SN is a read without side effects.
const DefaultStopCommand = CmdSerialNumber

var (
	ErrNoDevice    = errors.New("no barometer found")
	ErrNoResponse  = errors.New("no response")
	ErrInvalidRate = errors.New("invalid sample rate")
)

// Device is the handle of one barometer.
// After discovery it is owned by the sampling session.
type Device struct {
	conn   port.Conn
	frames *framer.Reader

	// Model is the identity answer of the device.
	Model string
	// SerialNumber identifies the device in the log files.
	SerialNumber string
	// SampleRate is the rate reported by the device in Hz.
	SampleRate int
	// Timeout is the read timeout derived from SampleRate.
	Timeout time.Duration
}

// NewDevice wraps an open connection.
func NewDevice(conn port.Conn) *Device {
	return &Device{
		conn:   conn,
		frames: framer.New(conn),
	}
}

// Port returns the device path of the connection.
func (d *Device) Port() string {
	return d.conn.Name()
}

// String returns the serial number, or the port while the serial number is unknown.
func (d *Device) String() string {
	if d.SerialNumber != "" {
		return d.SerialNumber
	}
	return d.conn.Name()
}

// Command returns the command line for code addressed to the device.
func Command(code string) string {
	return address + code
}

// Send writes cmd with the line terminator and reads exactly one frame.
// The response is returned without the address echo and the terminator.
// A read timeout returns an empty response and no error.
func (d *Device) Send(cmd string) (string, error) {
	debug.DebugLog.Printf("%s command: %s", d.conn.Name(), cmd)

	if _, err := d.conn.Write([]byte(cmd + terminator)); err != nil {
		return "", fmt.Errorf("write %q to %s: %w", cmd, d.conn.Name(), err)
	}

	f, err := d.frames.ReadFrame()
	if err != nil {
		return "", fmt.Errorf("read response of %q from %s: %w", cmd, d.conn.Name(), err)
	}

	debug.DebugLog.Printf("%s response: %s", d.conn.Name(), strings.TrimRight(string(f), terminator))
	return strip(f, responseHeader), nil
}

// Query sends the command code to the device.
func (d *Device) Query(code string) (string, error) {
	return d.Send(Command(code))
}

// ReadFrame reads the next frame with the current read timeout.
func (d *Device) ReadFrame() ([]byte, error) {
	return d.frames.ReadFrame()
}

// SetTimeout changes the read timeout of the connection.
func (d *Device) SetTimeout(timeout time.Duration) error {
	if err := d.conn.SetReadTimeout(timeout); err != nil {
		return err
	}
	d.Timeout = timeout
	return nil
}

// Start switches the device to continuous sampling (P4).
// The device ignores a P4 while it is already sampling, so Start is used for restarts too.
// The frame read as response is discarded.
func (d *Device) Start() error {
	_, err := d.Query(CmdContinuous)
	return err
}

// Stop sends the halt command code; any valid command terminates continuous output.
func (d *Device) Stop(code string) error {
	_, err := d.Query(code)
	return err
}

// Close closes the connection.
func (d *Device) Close() error {
	return d.conn.Close()
}

// Payload returns the sample value of a streamed frame.
func Payload(frame []byte) string {
	return strip(frame, sampleHeader)
}

// strip removes a fixed width header and the line terminator.
func strip(frame []byte, header int) string {
	s := strings.TrimRight(string(frame), terminator)
	if len(s) <= header {
		return ""
	}
	return s[header:]
}
