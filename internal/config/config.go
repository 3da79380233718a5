// Package config loads device settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve on minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/feedback-buttons/internal/gpio"
	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/power"
	"github.com/sweeney/feedback-buttons/internal/state"
)

// Environment overrides.
const (
	EnvDeviceID     = "DEVICE_ID"
	EnvWifiSSID     = "WIFI_SSID"
	EnvWifiPassword = "WIFI_PASSWORD"
	EnvMQTTBroker   = "MQTT_BROKER"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
)

// Button is one row of the button table.
type Button struct {
	Input     int    `yaml:"input"`     // input line offset
	Indicator int    `yaml:"indicator"` // indicator line offset
	Label     string `yaml:"label"`
}

// Config represents the structure of the configuration file.
type Config struct {
	DeviceID  string   `yaml:"device_id"`
	Chip      string   `yaml:"chip"`
	StateFile string   `yaml:"state_file"`
	Buttons   []Button `yaml:"buttons"`

	Timing struct {
		Poll       time.Duration `yaml:"poll"`       // interval between scans
		Settle     time.Duration `yaml:"settle"`     // debounce settle wait
		Indicator  time.Duration `yaml:"indicator"`  // how long a press stays lit
		Inactivity time.Duration `yaml:"inactivity"` // active period length after the last press
	} `yaml:"timing"`

	Capabilities struct {
		Sleep     bool `yaml:"sleep"`
		Telemetry bool `yaml:"telemetry"`
	} `yaml:"capabilities"`

	Wifi struct {
		SSID      string        `yaml:"ssid"`
		Password  string        `yaml:"password"`
		Interface string        `yaml:"interface"`
		Attempts  int           `yaml:"attempts"` // link polls before giving up
		Interval  time.Duration `yaml:"interval"`

		CommandTimeout time.Duration `yaml:"command_timeout"` // per nmcli call
	} `yaml:"wifi"`

	Clock struct {
		Server     string        `yaml:"server"`
		Timezone   string        `yaml:"timezone"` // IANA name
		Attempts   int           `yaml:"attempts"`
		Interval   time.Duration `yaml:"interval"`
		ValidAfter int64         `yaml:"valid_after"` // epoch seconds below which the clock is unset
		Timeout    time.Duration `yaml:"timeout"`     // per NTP query
	} `yaml:"clock"`

	MQTT struct {
		Broker         string        `yaml:"broker"`
		Username       string        `yaml:"username"`
		Password       string        `yaml:"password"`
		QoS            byte          `yaml:"qos"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`
	} `yaml:"mqtt"`
}

// Default returns the reference configuration: four buttons, sleep and telemetry on.
func Default() Config {
	var c Config
	c.DeviceID = "feedback-01"
	c.Chip = gpio.DefaultChip
	c.StateFile = state.DefaultPath
	for _, ch := range logic.DefaultChannels {
		c.Buttons = append(c.Buttons, Button{Input: ch.Input, Indicator: ch.Indicator, Label: ch.Label})
	}

	c.Timing.Poll = 50 * time.Millisecond
	c.Timing.Settle = logic.DefaultSettle
	c.Timing.Indicator = logic.DefaultIndicatorDuration
	c.Timing.Inactivity = logic.DefaultInactivityBudget

	c.Capabilities.Sleep = true
	c.Capabilities.Telemetry = true

	c.Wifi.Attempts = 20
	c.Wifi.Interval = 500 * time.Millisecond
	c.Wifi.CommandTimeout = 2 * time.Second

	c.Clock.Server = "pool.ntp.org"
	c.Clock.Timezone = "Europe/Copenhagen"
	c.Clock.Attempts = 20
	c.Clock.Interval = 500 * time.Millisecond
	c.Clock.ValidAfter = 100000
	c.Clock.Timeout = 2 * time.Second

	c.MQTT.Broker = "tcp://localhost:1883"
	c.MQTT.QoS = 1
	c.MQTT.ConnectTimeout = 5 * time.Second
	c.MQTT.PublishTimeout = 5 * time.Second
	return c
}

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Parse(data, &c); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML data into c, keeping values the document does not set.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// LoadEnv loads envFile, if present, into the process environment and applies
// the overrides. Variables already set in the environment win over the file.
func (c *Config) LoadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	c.ApplyEnv(os.Getenv)
	return nil
}

// ApplyEnv overrides settings from non-empty variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.DeviceID, EnvDeviceID)
	set(&c.Wifi.SSID, EnvWifiSSID)
	set(&c.Wifi.Password, EnvWifiPassword)
	set(&c.MQTT.Broker, EnvMQTTBroker)
	set(&c.MQTT.Username, EnvMQTTUsername)
	set(&c.MQTT.Password, EnvMQTTPassword)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is empty"))
	}
	if len(c.Buttons) == 0 {
		errs = append(errs, errors.New("no buttons configured"))
	}
	if c.Timing.Poll <= 0 {
		errs = append(errs, errors.New("timing.poll must be positive"))
	}
	if c.Timing.Settle < 0 {
		errs = append(errs, errors.New("timing.settle must not be negative"))
	}
	if c.Timing.Indicator <= 0 {
		errs = append(errs, errors.New("timing.indicator must be positive"))
	}
	if c.Timing.Inactivity <= 0 {
		errs = append(errs, errors.New("timing.inactivity must be positive"))
	}
	if c.Capabilities.Sleep {
		if c.StateFile == "" {
			errs = append(errs, errors.New("state_file is required with the sleep capability"))
		}
		inputs := make([]int, len(c.Buttons))
		for i, b := range c.Buttons {
			inputs[i] = b.Input
		}
		if _, err := power.WakeMask(inputs); err != nil {
			errs = append(errs, fmt.Errorf("buttons: %w", err))
		}
	}
	if _, err := time.LoadLocation(c.Clock.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("clock.timezone: %w", err))
	}

	if c.Capabilities.Telemetry {
		if c.Wifi.Attempts <= 0 {
			errs = append(errs, errors.New("wifi.attempts must be positive"))
		}
		if c.Wifi.CommandTimeout <= 0 {
			errs = append(errs, errors.New("wifi.command_timeout must be positive"))
		}
		if c.Clock.Attempts <= 0 {
			errs = append(errs, errors.New("clock.attempts must be positive"))
		}
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required with the telemetry capability"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos %d out of range", c.MQTT.QoS))
		}
	}

	if _, err := logic.NewCatalog(c.Channels()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Channels returns the button table as catalog channels.
func (c *Config) Channels() []logic.ButtonChannel {
	out := make([]logic.ButtonChannel, len(c.Buttons))
	for i, b := range c.Buttons {
		out[i] = logic.ButtonChannel{Index: i, Input: b.Input, Indicator: b.Indicator, Label: b.Label}
	}
	return out
}

// Pairs returns the GPIO line pairs in channel order.
func (c *Config) Pairs() []gpio.Pair {
	out := make([]gpio.Pair, len(c.Buttons))
	for i, b := range c.Buttons {
		out[i] = gpio.Pair{Input: b.Input, Indicator: b.Indicator}
	}
	return out
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Clock.Timezone)
}
