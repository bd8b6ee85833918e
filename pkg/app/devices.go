package app

import (
	"github.com/womat/debug"

	"dqlog/pkg/paro"
)

// devices finds the barometers on the configured or enumerated ports and reads their configuration.
// A device whose configuration can't be read is closed and skipped.
func (app *App) devices() ([]*paro.Device, error) {
	app.report()

	candidates := app.config.Ports
	if len(candidates) == 0 {
		var err error
		if candidates, err = app.enumerate(app.config.PortPatterns); err != nil {
			return nil, err
		}
	}

	for _, c := range candidates {
		debug.InfoLog.Printf("found: %s", c)
	}

	found, err := paro.Discover(candidates, app.open, app.config.Model)
	if err != nil {
		return nil, err
	}

	settings := app.config.DeviceSettings()
	devices := make([]*paro.Device, 0, len(found))
	for _, d := range found {
		if _, err = paro.Negotiate(d, app.config.SampleRate, settings, app.config.SettleDelay); err != nil {
			debug.ErrorLog.Printf("can't configure %s: %v", d, err)
			_ = d.Close()
			continue
		}
		devices = append(devices, d)
	}

	if len(devices) == 0 {
		return nil, paro.ErrNoDevice
	}
	return devices, nil
}
