// Package config loads the dewpoint-fan daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/dewpoint-fan/internal/civiltime"
	"github.com/sweeney/dewpoint-fan/internal/fan"
	"github.com/sweeney/dewpoint-fan/internal/gpio"
	"github.com/sweeney/dewpoint-fan/internal/policy"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the daemon configuration.
type Config struct {
	GPIO            GPIOConfig    `yaml:"gpio"`
	Sensors         SensorsConfig `yaml:"sensors"`
	Control         ControlConfig `yaml:"control"`
	Clock           ClockConfig   `yaml:"clock"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
	HTTP            HTTPConfig    `yaml:"http"`
	Storage         StorageConfig `yaml:"storage"`
	Log             LogConfig     `yaml:"log"`
	Heartbeat       Duration      `yaml:"heartbeat"` // 0 disables
	ShutdownTimeout Duration      `yaml:"shutdown_timeout"`
}

// GPIOConfig selects the character device lines.
type GPIOConfig struct {
	Chip         string `yaml:"chip"`
	FanPin       int    `yaml:"fan_pin"`
	FanActiveLow bool   `yaml:"fan_active_low"`
	PowerPin     int    `yaml:"sensor_power_pin"` // -1 disables the power watchdog output
	ButtonPin    int    `yaml:"button_pin"`       // -1 disables the mode button
	Fake         bool   `yaml:"fake"`             // run without hardware
}

// SensorsConfig locates the probes.
type SensorsConfig struct {
	Indoor       string   `yaml:"indoor"`  // IIO device directory
	Outdoor      string   `yaml:"outdoor"` // IIO device directory
	Poll         Duration `yaml:"poll"`
	PowerTimeout Duration `yaml:"power_timeout"`
	PowerOff     Duration `yaml:"power_off"`
	Fake         bool     `yaml:"fake"`
}

// ThresholdsConfig mirrors policy.Thresholds.
type ThresholdsConfig struct {
	MinIndoorTemp     float64 `yaml:"min_indoor_temp"`
	MinOutdoorTemp    float64 `yaml:"min_outdoor_temp"`
	MinIndoorDewPoint float64 `yaml:"min_indoor_dew_point"`
	MinDewPointGap    float64 `yaml:"min_dew_point_gap"`
}

// ControlConfig tunes the control cycle.
type ControlConfig struct {
	Interval   Duration         `yaml:"interval"`
	BufferSize int              `yaml:"buffer_size"`
	MinRun     Duration         `yaml:"min_run"`
	MinRest    Duration         `yaml:"min_rest"`
	Setpoint   string           `yaml:"setpoint"`
	Debounce   Duration         `yaml:"debounce"`
	ButtonPoll Duration         `yaml:"button_poll"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
}

// ClockConfig describes the local time zone.
type ClockConfig struct {
	StandardOffset Duration `yaml:"standard_offset"`
	DST            string   `yaml:"dst"` // "eu" or "none"
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	SwitchTopic    string   `yaml:"switch_topic"` // empty disables the wireless switch
	SwitchOn       string   `yaml:"switch_on"`
	SwitchOff      string   `yaml:"switch_off"`
	SwitchRefresh  Duration `yaml:"switch_refresh"`
	BufferSize     int      `yaml:"buffer_size"`
	ConnectRetries int      `yaml:"connect_retries"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables
}

// StorageConfig configures the CSV data log and the history database.
type StorageConfig struct {
	DataDir        string   `yaml:"data_dir"` // empty disables the CSV log
	SaveInterval   Duration `yaml:"save_interval"`
	HistoryPath    string   `yaml:"history_path"` // empty disables history
	HistoryMaxRows int      `yaml:"history_max_rows"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML accepts "90s", "16m" and similar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when a key is absent.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip:      gpio.DefaultChip,
			FanPin:    gpio.PinFan,
			PowerPin:  gpio.PinSensorPower,
			ButtonPin: gpio.PinButton,
		},
		Sensors: SensorsConfig{
			Indoor:       "/sys/bus/iio/devices/iio:device0",
			Outdoor:      "/sys/bus/iio/devices/iio:device1",
			Poll:         Duration(2 * time.Second),
			PowerTimeout: Duration(30 * time.Second),
			PowerOff:     Duration(10 * time.Second),
		},
		Control: ControlConfig{
			Interval:   Duration(time.Second),
			BufferSize: 8,
			MinRun:     Duration(16 * time.Minute),
			MinRest:    Duration(10 * time.Minute),
			Setpoint:   "auto",
			Debounce:   Duration(50 * time.Millisecond),
			ButtonPoll: Duration(10 * time.Millisecond),
			Thresholds: ThresholdsConfig{
				MinIndoorTemp:     10,
				MinOutdoorTemp:    -2,
				MinIndoorDewPoint: 5,
				MinDewPointGap:    3,
			},
		},
		Clock: ClockConfig{
			StandardOffset: Duration(time.Hour),
			DST:            "eu",
		},
		MQTT: MQTTConfig{
			Enabled:        true,
			Broker:         "tcp://192.168.1.200:1883",
			ClientID:       "dewpoint-fan",
			TopicPrefix:    "home/ventilation/dewpoint-fan",
			SwitchOn:       "ON",
			SwitchOff:      "OFF",
			SwitchRefresh:  Duration(20 * time.Second),
			BufferSize:     100,
			ConnectRetries: 5,
			ConnectTimeout: Duration(10 * time.Second),
		},
		HTTP: HTTPConfig{Addr: ":80"},
		Storage: StorageConfig{
			DataDir:        "/var/lib/dewpoint-fan/log",
			SaveInterval:   Duration(6 * time.Minute),
			HistoryPath:    "/var/lib/dewpoint-fan/history.db",
			HistoryMaxRows: 8000,
		},
		Log:             LogConfig{Level: "info"},
		Heartbeat:       Duration(15 * time.Minute),
		ShutdownTimeout: Duration(5 * time.Second),
	}
}

// Load reads the YAML file at path over Default. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment variables in data, decodes it into cfg and
// validates the result. Keys absent from data keep their value in cfg.
func Parse(data []byte, cfg *Config) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default}.
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	ceiling := time.Duration(fan.CounterCeiling) * time.Second
	switch {
	case c.Control.MinRun.Duration() <= 0 || c.Control.MinRun.Duration() > ceiling:
		return invalid("control.min_run %s outside (0, %s]", c.Control.MinRun.Duration(), ceiling)
	case c.Control.MinRest.Duration() < 0 || c.Control.MinRest.Duration() > ceiling:
		return invalid("control.min_rest %s outside [0, %s]", c.Control.MinRest.Duration(), ceiling)
	case c.Control.BufferSize < 1:
		return invalid("control.buffer_size must be at least 1")
	case c.Control.Interval.Duration() <= 0:
		return invalid("control.interval must be positive")
	case c.Sensors.Poll.Duration() <= 0:
		return invalid("sensors.poll must be positive")
	case c.Control.ButtonPoll.Duration() <= 0:
		return invalid("control.button_poll must be positive")
	case c.Control.Debounce.Duration() < 0:
		return invalid("control.debounce must not be negative")
	case c.Sensors.PowerTimeout.Duration() <= 0:
		return invalid("sensors.power_timeout must be positive")
	case c.Sensors.PowerOff.Duration() <= 0:
		return invalid("sensors.power_off must be positive")
	case c.Storage.SaveInterval.Duration() <= 0:
		return invalid("storage.save_interval must be positive")
	case c.Heartbeat.Duration() < 0:
		return invalid("heartbeat must not be negative")
	case c.MQTT.Enabled && c.MQTT.Broker == "":
		return invalid("mqtt.broker is required when mqtt is enabled")
	case c.MQTT.BufferSize < 1:
		return invalid("mqtt.buffer_size must be at least 1")
	case c.MQTT.SwitchTopic != "" && c.MQTT.SwitchOn == c.MQTT.SwitchOff:
		return invalid("mqtt.switch_on and mqtt.switch_off must differ")
	case c.GPIO.FanPin < 0:
		return invalid("gpio.fan_pin must not be negative")
	}
	if _, ok := fan.ParseSetpoint(c.Control.Setpoint); !ok {
		return invalid("control.setpoint %q is not off, auto or on", c.Control.Setpoint)
	}
	if _, err := c.DSTRule(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// Setpoint returns the configured initial setpoint.
func (c *Config) Setpoint() fan.Setpoint {
	sp, _ := fan.ParseSetpoint(c.Control.Setpoint)
	return sp
}

// Thresholds returns the policy thresholds.
func (c *Config) Thresholds() policy.Thresholds {
	t := c.Control.Thresholds
	return policy.Thresholds{
		MinInnerTemp:     t.MinIndoorTemp,
		MinOuterTemp:     t.MinOutdoorTemp,
		MinInnerDewPoint: t.MinIndoorDewPoint,
		MinDewPointGap:   t.MinDewPointGap,
	}
}

// FanConfig returns the actuator dwell limits.
func (c *Config) FanConfig() fan.Config {
	return fan.Config{MinRun: c.Control.MinRun.Duration(), MinRest: c.Control.MinRest.Duration()}
}

// DSTRule returns the daylight saving rule.
func (c *Config) DSTRule() (civiltime.Rule, error) {
	switch c.Clock.DST {
	case "", "eu":
		return civiltime.CentralEuropean{}, nil
	case "none":
		return civiltime.NoDST{}, nil
	}
	return nil, invalid("clock.dst %q is not eu or none", c.Clock.DST)
}

// LogLevel parses the configured zerolog level. Empty means info.
func (c *Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, invalid("log.level %q", c.Log.Level)
	}
	return lvl, nil
}
