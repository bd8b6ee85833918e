package paro

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/womat/debug"
)

const (
	// MinSampleRate and MaxSampleRate bound the continuous sample rate in Hz.
	MinSampleRate = 1
	MaxSampleRate = 45

	// minTimeout is the smallest read timeout the serial driver can wait (one decisecond).
	minTimeout = 100 * time.Millisecond
)

// Field is a configuration register of the barometer.
type Field struct {
	Code        string
	Description string
}

// Fields are the registers reported by Negotiate, in query order.
var Fields = []Field{
	{CmdFirmware, "firmware version"},
	{CmdUnits, "pressure units"},
	{CmdResolution, "nano-resolution mode flag"},
	{CmdOutputMode, "data output mode"},
	{CmdDigits, "significant digits"},
	{CmdSampleRate, "sample rate"},
	{CmdAntiAlias, "anti-alias filter setting"},
	{CmdTimestamps, "timestamps flag"},
	{CmdGPS, "GPS interface flag"},
	{CmdTimeFormat, "timestamp format"},
	{CmdDateTime, "date and time"},
}

// Setting is a register value the device should have.
type Setting struct {
	Code  string
	Value string
}

// Effective is the configuration the device actually runs with.
type Effective struct {
	// Values holds the reported register values by command code.
	Values map[string]string
	// SampleRate is the rate reported by the device.
	SampleRate int
	// Timeout is the read timeout derived from SampleRate.
	Timeout time.Duration
	// Written lists the registers changed by Negotiate.
	Written []string
}

// ReadTimeout returns the read timeout for a sample rate: one sample period,
// but at least the serial driver resolution.
func ReadTimeout(rate int) time.Duration {
	if rate < MinSampleRate {
		rate = MinSampleRate
	}

	t := time.Second / time.Duration(rate)
	if t < minTimeout {
		return minTimeout
	}
	return t
}

// ValidSampleRate reports whether rate is a supported continuous sample rate.
func ValidSampleRate(rate int) bool {
	return rate >= MinSampleRate && rate <= MaxSampleRate
}

// Negotiate reports the device configuration and determines its effective sample rate.
//  The configuration memory of the barometer survives only a limited number of writes,
//  so settings are written only if the current value differs (see Ensure).
//  The sample rate register is read last and the value reported by the device, not desired,
//  is used for the read timeout: the device keeps its configuration across power cycles.
// delay is the settling time between two queries.
func Negotiate(d *Device, desired int, settings []Setting, delay time.Duration) (Effective, error) {
	e := Effective{Values: map[string]string{}}

	for _, s := range settings {
		changed, err := d.Ensure(s.Code, s.Value)
		if err != nil {
			return e, err
		}
		if changed {
			e.Written = append(e.Written, s.Code)
		}
		pause(delay)
	}

	debug.InfoLog.Printf("configuring serial number: %s", d.SerialNumber)
	for _, f := range Fields {
		v, err := d.Query(f.Code)
		if err != nil {
			return e, err
		}

		e.Values[f.Code] = v
		switch f.Code {
		case CmdAntiAlias:
			debug.InfoLog.Printf("  %s (%s = %s)%s", f.Description, f.Code, v, cutoff(v))
		default:
			debug.InfoLog.Printf("  %s (%s = %s)", f.Description, f.Code, v)
		}
		pause(delay)
	}

	th, err := d.Query(CmdSampleRate)
	if err != nil {
		return e, err
	}

	rate, err := ParseSampleRate(th)
	if err != nil {
		return e, fmt.Errorf("%s: %w", d, err)
	}

	if rate != desired {
		debug.WarningLog.Printf("%s: device samples at %d Hz, requested %d Hz", d, rate, desired)
	}

	e.SampleRate = rate
	e.Timeout = ReadTimeout(rate)
	if err = d.SetTimeout(e.Timeout); err != nil {
		return e, err
	}
	d.SampleRate = rate

	debug.InfoLog.Printf("  sample rate = %d, sample period = %v, read timeout = %v", rate, time.Second/time.Duration(rate), e.Timeout)
	return e, nil
}

// Ensure writes value to the register code only if the device holds a different value.
// It reports whether a write happened.
func (d *Device) Ensure(code, value string) (bool, error) {
	current, err := d.Query(code)
	if err != nil {
		return false, err
	}
	if current == "" {
		return false, fmt.Errorf("%s: read %s: %w", d, code, ErrNoResponse)
	}
	if current == value {
		debug.DebugLog.Printf("%s: %s already %s", d, code, value)
		return false, nil
	}

	debug.InfoLog.Printf("%s: writing %s = %s (was %s)", d, code, value, current)
	if _, err = d.Send(Command(CmdEnableWrite) + Command(code) + "=" + value); err != nil {
		return false, err
	}

	confirmed, err := d.Query(code)
	if err != nil {
		return true, err
	}
	if confirmed != value {
		return true, fmt.Errorf("%s: %s is %q after write of %q", d, code, confirmed, value)
	}
	return true, nil
}

// ParseSampleRate parses the answer of the TH command ("<rate>,<other fields>").
func ParseSampleRate(th string) (int, error) {
	s := th
	if i := strings.IndexByte(th, ','); i >= 0 {
		s = th[:i]
	}

	rate, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, th)
	}
	if !ValidSampleRate(rate) {
		return 0, fmt.Errorf("%w: %d Hz", ErrInvalidRate, rate)
	}
	return rate, nil
}

// cutoff describes the anti-alias filter cutoff frequency 2^(9-IA) Hz.
func cutoff(ia string) string {
	n, err := strconv.Atoi(strings.TrimSpace(ia))
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%v Hz cutoff)", math.Pow(2, float64(9-n)))
}

func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
