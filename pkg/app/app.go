package app

import (
	"context"
	"io"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
	"go.uber.org/multierr"

	"dqlog/pkg/app/config"
	"dqlog/pkg/logrouter"
	"dqlog/pkg/mqtt"
	"dqlog/pkg/port"
	"dqlog/pkg/raspberry"
	"dqlog/pkg/session"
)

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Webserver.URL parameter, nil if the web server is disabled
	urlParsed *url.URL

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler

	// led is the activity led, nil if disabled
	led *raspberry.LED

	// open and enumerate access the serial ports
	open      port.Opener
	enumerate func([]string) ([]string, error)

	// stdout receives the samples in test mode
	stdout io.Writer

	// session samples the devices, nil until the devices are configured
	session *session.Session

	mu sync.Mutex
	// published holds the time of the last mqtt message per serial number
	published map[string]time.Time
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	app := &App{
		config:    config,
		web:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt:      mqtt.New(),
		open:      port.Open,
		enumerate: port.Enumerate,
		stdout:    os.Stdout,
		published: map[string]time.Time{},
	}

	if config.Webserver.URL != "" {
		u, err := url.Parse(config.Webserver.URL)
		if err != nil {
			debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
			return app, err
		}
		app.urlParsed = u
	}

	return app, nil
}

// Run discovers and configures the barometers and samples them until ctx is done.
// The caller must treat paro.ErrNoDevice and port.ErrNoPorts as a clean exit.
func (app *App) Run(ctx context.Context) error {
	if err := app.init(); err != nil {
		return err
	}

	go app.mqtt.Service()
	if app.urlParsed != nil {
		go app.runWebServer()
	}

	return app.session.Run(ctx)
}

// init initializes the application.
func (app *App) init() error {
	devices, err := app.devices()
	if err != nil {
		return err
	}

	rate := devices[0].SampleRate
	for _, d := range devices[1:] {
		if d.SampleRate != rate {
			debug.WarningLog.Printf("%s samples at %d Hz, log files are named with %d Hz", d, d.SampleRate, rate)
		}
	}

	var opts []logrouter.Option
	if app.config.TestMode {
		opts = append(opts, logrouter.WithEcho(app.stdout))
	}
	router := logrouter.New(app.config.LogRootDir, rate, len(devices), opts...)

	if err = app.mqtt.Connect(app.config.MQTT.Connection, MODULE); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
	}

	if app.config.LED.Line >= 0 {
		if app.led, err = raspberry.OpenLED(app.config.LED.Chip, app.config.LED.Line); err != nil {
			debug.ErrorLog.Printf("can't open activity led: %v", err)
		}
	}

	app.mu.Lock()
	app.session = session.New(devices, router,
		session.WithStopCommand(app.config.StopCommand),
		session.WithSettleDelay(app.config.SettleDelay),
		session.WithObserver(app.observe),
	)
	app.mu.Unlock()

	// initDefaultRoutes should be always called last because it may access things like app.session
	app.initDefaultRoutes()

	return nil
}

// Session returns the sampling session, nil before the devices are configured.
func (app *App) Session() *session.Session {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.session
}

// Close releases the resources which are not owned by the session.
func (app *App) Close() error {
	var err error

	if s := app.Session(); s != nil {
		err = multierr.Append(err, s.Shutdown())
	}

	err = multierr.Append(err, app.mqtt.Disconnect())

	if app.led != nil {
		err = multierr.Append(err, app.led.Close())
	}

	if app.urlParsed != nil {
		err = multierr.Append(err, app.web.Shutdown())
	}
	return err
}

// observe is called by the session for every sample.
func (app *App) observe(s session.Sample) {
	if app.led != nil {
		if err := app.led.Toggle(); err != nil {
			debug.DebugLog.Printf("toggle led: %v", err)
		}
	}

	app.publish(s)
}

// report prints the settings used for this run.
func (app *App) report() {
	debug.InfoLog.Printf("test mode   = %v", app.config.TestMode)
	debug.InfoLog.Printf("sample rate = %d Hz", app.config.SampleRate)
	debug.InfoLog.Printf("log root directory = %s", app.config.LogRootDir)
}
