package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/link"
	"github.com/itohio/envrelay/pkg/uplink"
)

// Config represents the application configuration. It is read once at boot.
type Config struct {
	Sensor   SensorConfig    `yaml:"sensor"`
	Offsets  OffsetsConfig   `yaml:"offsets"`
	Networks []NetworkConfig `yaml:"networks"`
	Link     LinkConfig      `yaml:"link"`
	Uplink   UplinkConfig    `yaml:"uplink"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Watchdog WatchdogConfig  `yaml:"watchdog"`
	BusRetry BusRetryConfig  `yaml:"bus_retry"`
	Display  DisplayConfig   `yaml:"display"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Log      LogConfig       `yaml:"log"`
	Mock     MockConfig      `yaml:"mock"`
}

// SensorConfig contains BME680 bus and conversion settings.
type SensorConfig struct {
	Bus              string        `yaml:"bus"` // periph bus name, empty for the first one
	Address          uint16        `yaml:"address"`
	FallbackAddress  uint16        `yaml:"fallback_address"`
	TransactionDelay time.Duration `yaml:"transaction_delay"`
	ResetDelay       time.Duration `yaml:"reset_delay"`
	Temperature      int           `yaml:"temperature_oversampling"` // 0 (skip), 1, 2, 4, 8 or 16
	Pressure         int           `yaml:"pressure_oversampling"`
	Humidity         int           `yaml:"humidity_oversampling"`
	Filter           int           `yaml:"filter"` // 0, 1, 3, 7, 15, 31, 63 or 127
	DisableGas       bool          `yaml:"disable_gas"`
	HeaterTemp       int           `yaml:"heater_temp"`     // °C
	HeaterDuration   int           `yaml:"heater_duration"` // ms
	AmbientTemp      int           `yaml:"ambient_temp"`    // °C
}

// OffsetsConfig holds per-device additive corrections. They are empirical.
type OffsetsConfig struct {
	Temperature float64 `yaml:"temperature"`
	Humidity    float64 `yaml:"humidity"`
	Pressure    float64 `yaml:"pressure"`
}

// NetworkConfig is one ranked Wi-Fi candidate.
type NetworkConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// LinkConfig contains association and reconnect settings.
type LinkConfig struct {
	Interface      string        `yaml:"interface"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	JoinTimeout    time.Duration `yaml:"join_timeout"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// UplinkConfig contains the Ambient channel settings.
type UplinkConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Channel    string        `yaml:"channel"`
	WriteKey   string        `yaml:"write_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryStep  time.Duration `yaml:"retry_step"`
}

// ScheduleConfig contains the loop timing.
type ScheduleConfig struct {
	Cadence       time.Duration `yaml:"cadence"`
	SendInterval  time.Duration `yaml:"send_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// WatchdogConfig contains the liveness lease settings.
type WatchdogConfig struct {
	Device  string        `yaml:"device"`
	Timeout time.Duration `yaml:"timeout"`
	Margin  time.Duration `yaml:"margin"`
}

// BusRetryConfig contains the measurement retry policy.
type BusRetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	FailThreshold   int           `yaml:"fail_threshold"`
	ConversionDelay time.Duration `yaml:"conversion_delay"`
}

// DisplayConfig selects the console. An empty serial port means stdout.
type DisplayConfig struct {
	Serial   string `yaml:"serial"`
	BaudRate int    `yaml:"baud_rate"`
}

// MetricsConfig contains the Prometheus endpoint. Empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MockConfig contains the simulated hardware settings.
type MockConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Visible   []string `yaml:"visible"`    // SSIDs the mock radio sees, default all configured
	JoinPolls int      `yaml:"join_polls"` // polls until a join completes
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Address:          bme680.AddressPrimary,
			FallbackAddress:  bme680.AddressSecondary,
			TransactionDelay: bme680.DefaultTransactionDelay,
			ResetDelay:       10 * time.Millisecond,
			Temperature:      2,
			Pressure:         16,
			Humidity:         2,
			Filter:           1,
			HeaterTemp:       300,
			HeaterDuration:   100,
			AmbientTemp:      bme680.DefaultAmbientTemp,
		},
		Link: LinkConfig{
			Interface:      "wlan0",
			PollInterval:   time.Second,
			JoinTimeout:    20 * time.Second,
			BackoffInitial: link.InitialBackoff,
			BackoffMax:     link.MaxBackoff,
		},
		Uplink: UplinkConfig{
			Endpoint:   uplink.DefaultEndpoint,
			Timeout:    5 * time.Second,
			MaxRetries: 3,
			RetryStep:  2 * time.Second,
		},
		Schedule: ScheduleConfig{
			Cadence:       30 * time.Second,
			SendInterval:  10 * time.Minute,
			RetryInterval: time.Minute,
		},
		Watchdog: WatchdogConfig{
			Device:  "/dev/watchdog",
			Timeout: 8 * time.Second,
			Margin:  2 * time.Second,
		},
		BusRetry: BusRetryConfig{
			MaxAttempts:     3,
			BaseDelay:       100 * time.Millisecond,
			FailThreshold:   5,
			ConversionDelay: 200 * time.Millisecond,
		},
		Display: DisplayConfig{
			BaudRate: 115200,
		},
		Log: LogConfig{
			Level: "info",
		},
		Mock: MockConfig{
			JoinPolls: 2,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate rejects settings the hardware cannot use.
func (c *Config) Validate() error {
	if _, err := oversampling(c.Sensor.Temperature); err != nil {
		return errors.Wrap(err, "sensor.temperature_oversampling")
	}
	if _, err := oversampling(c.Sensor.Pressure); err != nil {
		return errors.Wrap(err, "sensor.pressure_oversampling")
	}
	if _, err := oversampling(c.Sensor.Humidity); err != nil {
		return errors.Wrap(err, "sensor.humidity_oversampling")
	}
	if _, err := filter(c.Sensor.Filter); err != nil {
		return errors.Wrap(err, "sensor.filter")
	}
	for i, n := range c.Networks {
		if n.SSID == "" {
			return errors.Errorf("networks[%d]: empty ssid", i)
		}
	}
	if len(c.Networks) > 0 && c.Uplink.Channel == "" {
		return errors.New("uplink.channel is required when networks are configured")
	}
	if c.Watchdog.Margin >= c.Watchdog.Timeout {
		return errors.Errorf("watchdog.margin %v must be shorter than watchdog.timeout %v", c.Watchdog.Margin, c.Watchdog.Timeout)
	}
	// A single post runs between two feeds and must end before the lease does.
	if budget := c.Watchdog.Timeout - c.Watchdog.Margin; c.Uplink.Timeout >= budget {
		return errors.Errorf("uplink.timeout %v must be shorter than watchdog.timeout minus watchdog.margin (%v)", c.Uplink.Timeout, budget)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensor.Address == 0 {
		c.Sensor.Address = def.Sensor.Address
	}
	if c.Sensor.FallbackAddress == 0 {
		c.Sensor.FallbackAddress = def.Sensor.FallbackAddress
	}
	if c.Sensor.TransactionDelay == 0 {
		c.Sensor.TransactionDelay = def.Sensor.TransactionDelay
	}
	if c.Sensor.ResetDelay == 0 {
		c.Sensor.ResetDelay = def.Sensor.ResetDelay
	}
	if c.Sensor.HeaterTemp == 0 {
		c.Sensor.HeaterTemp = def.Sensor.HeaterTemp
	}
	if c.Sensor.HeaterDuration == 0 {
		c.Sensor.HeaterDuration = def.Sensor.HeaterDuration
	}
	if c.Sensor.AmbientTemp == 0 {
		c.Sensor.AmbientTemp = def.Sensor.AmbientTemp
	}

	if c.Link.Interface == "" {
		c.Link.Interface = def.Link.Interface
	}
	if c.Link.PollInterval == 0 {
		c.Link.PollInterval = def.Link.PollInterval
	}
	if c.Link.JoinTimeout == 0 {
		c.Link.JoinTimeout = def.Link.JoinTimeout
	}
	if c.Link.BackoffInitial == 0 {
		c.Link.BackoffInitial = def.Link.BackoffInitial
	}
	if c.Link.BackoffMax == 0 {
		c.Link.BackoffMax = def.Link.BackoffMax
	}

	if c.Uplink.Endpoint == "" {
		c.Uplink.Endpoint = def.Uplink.Endpoint
	}
	if c.Uplink.Timeout == 0 {
		c.Uplink.Timeout = def.Uplink.Timeout
	}
	if c.Uplink.MaxRetries == 0 {
		c.Uplink.MaxRetries = def.Uplink.MaxRetries
	}
	if c.Uplink.RetryStep == 0 {
		c.Uplink.RetryStep = def.Uplink.RetryStep
	}

	if c.Schedule.Cadence == 0 {
		c.Schedule.Cadence = def.Schedule.Cadence
	}
	if c.Schedule.SendInterval == 0 {
		c.Schedule.SendInterval = def.Schedule.SendInterval
	}
	if c.Schedule.RetryInterval == 0 {
		c.Schedule.RetryInterval = def.Schedule.RetryInterval
	}

	if c.Watchdog.Device == "" {
		c.Watchdog.Device = def.Watchdog.Device
	}
	if c.Watchdog.Timeout == 0 {
		c.Watchdog.Timeout = def.Watchdog.Timeout
	}
	if c.Watchdog.Margin == 0 {
		c.Watchdog.Margin = def.Watchdog.Margin
	}

	if c.BusRetry.MaxAttempts == 0 {
		c.BusRetry.MaxAttempts = def.BusRetry.MaxAttempts
	}
	if c.BusRetry.BaseDelay == 0 {
		c.BusRetry.BaseDelay = def.BusRetry.BaseDelay
	}
	if c.BusRetry.FailThreshold == 0 {
		c.BusRetry.FailThreshold = def.BusRetry.FailThreshold
	}
	if c.BusRetry.ConversionDelay == 0 {
		c.BusRetry.ConversionDelay = def.BusRetry.ConversionDelay
	}

	if c.Display.BaudRate == 0 {
		c.Display.BaudRate = def.Display.BaudRate
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Mock.JoinPolls == 0 {
		c.Mock.JoinPolls = def.Mock.JoinPolls
	}
}
