package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"

	"dqlog/pkg/paro"
	"dqlog/pkg/port"
)

var ErrConfiguration = errors.New("configuration error")

// Config holds the application configuration.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	SampleRate     int               `yaml:"samplerate"`
	LogRootDir     string            `yaml:"logrootdir"`
	TestMode       bool              `yaml:"testmode"`
	Verbose        bool              `yaml:"verbose"`
	Ports          []string          `yaml:"ports"`
	PortPatterns   []string          `yaml:"portpatterns"`
	Model          string            `yaml:"model"`
	StopCommand    string            `yaml:"stopcommand"`
	SettleDelayInt int               `yaml:"settledelay"`
	SettleDelay    time.Duration     `yaml:"-"`
	Settings       map[string]string `yaml:"settings"`
	Flag           FlagConfig        `yaml:"-"`
	Debug          DebugConfig       `yaml:"debug"`
	Webserver      WebserverConfig   `yaml:"webserver"`
	MQTT           MQTTConfig        `yaml:"mqtt"`
	LED            LEDConfig         `yaml:"led"`
}

// FlagConfig defines the configured flags (parameters)
// SampleRateSet and LogRootDirSet mark flags given on the command line,
// an explicit zero value must not fall back to the config file.
type FlagConfig struct {
	ConfigFile    string
	LogLevel      string
	TestMode      bool
	Verbose       bool
	SampleRate    int
	SampleRateSet bool
	LogRootDir    string
	LogRootDirSet bool
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection"`
	Interval    time.Duration `yaml:"-"`
	IntervalInt int           `yaml:"interval"`
	Topic       string        `yaml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

// LEDConfig defines the gpio line of the activity led, a negative line disables the led.
type LEDConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

func NewConfig() *Config {
	return &Config{
		SampleRate:     20,
		LogRootDir:     "./",
		PortPatterns:   append([]string(nil), port.DefaultPatterns...),
		Model:          paro.DefaultModel,
		StopCommand:    paro.DefaultStopCommand,
		SettleDelayInt: 100,
		Flag:           FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
			},
		},
		MQTT: MQTTConfig{
			Connection:  "",
			IntervalInt: 1,
			Topic:       "dqlog",
		},
		LED: LEDConfig{
			Chip: "gpiochip0",
			Line: -1,
		},
	}
}

// LoadConfig reads the config file, overlays the command line flags and validates the result.
// A missing config file is ignored unless required is set.
func (c *Config) LoadConfig(required bool) error {
	if err := c.readConfigFile(); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
		}
	}

	c.overlayFlags()

	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second
	c.SettleDelay = time.Duration(c.SettleDelayInt) * time.Millisecond

	return c.Validate()
}

// Validate checks the settings needed before any device is touched.
func (c *Config) Validate() error {
	if !paro.ValidSampleRate(c.SampleRate) {
		return fmt.Errorf("%w: sample rate must be an integer between %d and %d Hz, got %d",
			ErrConfiguration, paro.MinSampleRate, paro.MaxSampleRate, c.SampleRate)
	}

	if fi, err := os.Stat(c.LogRootDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: log root directory %q does not exist", ErrConfiguration, c.LogRootDir)
	}

	if c.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrConfiguration)
	}
	if len(c.StopCommand) != 2 {
		return fmt.Errorf("%w: invalid stop command %q", ErrConfiguration, c.StopCommand)
	}

	return nil
}

// DeviceSettings returns the configured register values in a stable order.
func (c *Config) DeviceSettings() []paro.Setting {
	codes := make([]string, 0, len(c.Settings))
	for code := range c.Settings {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	s := make([]paro.Setting, 0, len(codes))
	for _, code := range codes {
		s = append(s, paro.Setting{Code: code, Value: c.Settings[code]})
	}
	return s
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil && err != io.EOF {
		return err
	}

	return nil
}

// overlayFlags lets command line flags win over the config file.
func (c *Config) overlayFlags() {
	if c.Flag.TestMode {
		c.TestMode = true
	}
	if c.Flag.Verbose {
		c.Verbose = true
	}
	if c.Flag.SampleRateSet {
		c.SampleRate = c.Flag.SampleRate
	}
	if c.Flag.LogRootDirSet {
		c.LogRootDir = c.Flag.LogRootDir
	}
	if c.Flag.LogLevel != "" {
		c.Debug.FlagString = c.Flag.LogLevel
	}
	if c.Verbose && c.Debug.FlagString == "standard" {
		c.Debug.FlagString = "debug"
	}
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("%w: invalid log level %q", ErrConfiguration, c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
