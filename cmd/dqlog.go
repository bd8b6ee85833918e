package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"dqlog/pkg/app"
	"dqlog/pkg/app/config"
	"dqlog/pkg/paro"
	"dqlog/pkg/port"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()

	if err := newCLI(cfg).Run(os.Args); err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
}

// newCLI returns the command line application, parsed flags are stored in cfg.Flag.
func newCLI(cfg *config.Config) *cli.App {
	// -v is verbose, the version is printed with -V
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Aliases: []string{"V"}, Usage: "print the version"}

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "Logs regularly sampled barometer pressure data",
		Version: app.VERSION,
		Description: "Samples Paroscientific DigiQuartz 6000-16B-IS barometers in continuous mode (P4)" +
			"\n and writes the samples to hourly log files <logrootdir>/DQLOG-<YYYYMMDD>/DQ-<YYYYMMDD>-<HHMMSS>-<rate>-<devices>.txt.",
		UsageText: "dqlog [--test] [--verbose] [--samplerate <hz>] [--logrootdir <dir>] [--config <file>]" +
			"\n\nEXAMPLE:" +
			"\n\tsample at 40 Hz and store the log files on a usb drive" +
			"\n\t\tdqlog --samplerate 40 --logrootdir /media/usb",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.LogLevel, Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
			&cli.BoolFlag{Name: "test", Aliases: []string{"t"}, Destination: &cfg.Flag.TestMode, Usage: "print barometer data to console rather than saving to log file"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Destination: &cfg.Flag.Verbose, Usage: "show verbose output"},
			&cli.IntFlag{Name: "samplerate", Aliases: []string{"s"}, Destination: &cfg.Flag.SampleRate, Usage: "set barometer sample rate in `HZ` (1..45, default 20)"},
			&cli.StringFlag{Name: "logrootdir", Aliases: []string{"r"}, Destination: &cfg.Flag.LogRootDir, Usage: "root data `DIR`ectory, must exist (default ./)"},
		},
		Action: func(c *cli.Context) error {
			cfg.Flag.SampleRateSet = c.IsSet("samplerate")
			cfg.Flag.LogRootDirSet = c.IsSet("logrootdir")

			if err := cfg.LoadConfig(c.IsSet("config")); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	return cliApp
}

// run samples the barometers until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
	defer func() {
		if cfg.Debug.File == os.Stderr || cfg.Debug.File == os.Stdout {
			return
		}
		debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
		_ = cfg.Debug.File.Close()
	}()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		debug.InfoLog.Printf("closing app %s", app.Version())
		_ = a.Close()
	}()

	// capture exit signals to ensure the barometers are stopped and the log file is closed on exit.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	go func() {
		select {
		case sig := <-quit:
			debug.InfoLog.Printf("Got %s signal. Aborting...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	debug.InfoLog.Printf("starting app %s", app.Version())
	err = a.Run(ctx)
	if errors.Is(err, paro.ErrNoDevice) || errors.Is(err, port.ErrNoPorts) {
		debug.InfoLog.Printf("%v, quitting", err)
		return nil
	}
	return err
}
