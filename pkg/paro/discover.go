package paro

import (
	"strings"

	"github.com/womat/debug"

	"dqlog/pkg/port"
)

// DefaultModel is the model identifier the logger is built for.
const DefaultModel = "6000-16B-IS"

// Discover probes every candidate port for a barometer of the given model.
//  A port is opened with the probe timeout and asked for its model number (MN).
//  On a match the serial number (SN) is read and the port is kept open,
//  otherwise the port is closed again.
//  Ports which can't be opened or don't answer are skipped.
// ErrNoDevice is returned if no candidate matches.
func Discover(candidates []string, open port.Opener, model string) ([]*Device, error) {
	var devices []*Device

	for _, name := range candidates {
		debug.InfoLog.Printf("checking: %s", name)

		d, ok := probe(name, open, model)
		if !ok {
			continue
		}

		debug.InfoLog.Printf("barometer %s on %s, serial number %s", d.Model, name, d.SerialNumber)
		devices = append(devices, d)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevice
	}

	debug.InfoLog.Printf("%d barometer(s) found", len(devices))
	return devices, nil
}

// probe opens name and classifies the device behind it.
func probe(name string, open port.Opener, model string) (*Device, bool) {
	conn, err := open(name, port.ProbeTimeout)
	if err != nil {
		debug.WarningLog.Printf("can't open %s: %v", name, err)
		return nil, false
	}

	d := NewDevice(conn)
	discard := func(reason string, args ...interface{}) (*Device, bool) {
		debug.DebugLog.Printf("%s: "+reason, append([]interface{}{name}, args...)...)
		if err := conn.Close(); err != nil {
			debug.WarningLog.Printf("closing %s: %v", name, err)
		}
		return nil, false
	}

	mn, err := d.Query(CmdModel)
	if err != nil {
		return discard("model number: %v", err)
	}
	if !strings.Contains(mn, model) {
		return discard("bad barometer response: %q", mn)
	}

	sn, err := d.Query(CmdSerialNumber)
	if err != nil {
		return discard("serial number: %v", err)
	}
	if sn == "" {
		return discard("serial number: %v", ErrNoResponse)
	}

	d.Model = mn
	d.SerialNumber = sn
	return d, true
}
