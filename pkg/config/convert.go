package config

import (
	"github.com/pkg/errors"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/health"
	"github.com/itohio/envrelay/pkg/link"
	"github.com/itohio/envrelay/pkg/scheduler"
	"github.com/itohio/envrelay/pkg/uplink"
)

func oversampling(n int) (bme680.Oversampling, error) {
	switch n {
	case 0:
		return bme680.Skipped, nil
	case 1:
		return bme680.Sampling1X, nil
	case 2:
		return bme680.Sampling2X, nil
	case 4:
		return bme680.Sampling4X, nil
	case 8:
		return bme680.Sampling8X, nil
	case 16:
		return bme680.Sampling16X, nil
	}
	return 0, errors.Errorf("invalid oversampling %d", n)
}

func filter(n int) (bme680.FilterCoefficient, error) {
	for i, v := range []int{0, 1, 3, 7, 15, 31, 63, 127} {
		if v == n {
			return bme680.FilterCoefficient(i), nil
		}
	}
	return 0, errors.Errorf("invalid filter coefficient %d", n)
}

// SensorOptions returns the driver options. Call Validate first.
func (c *Config) SensorOptions() bme680.Options {
	s := c.Sensor
	t, _ := oversampling(s.Temperature)
	p, _ := oversampling(s.Pressure)
	h, _ := oversampling(s.Humidity)
	f, _ := filter(s.Filter)
	return bme680.Options{
		Address:          s.Address,
		FallbackAddress:  s.FallbackAddress,
		TransactionDelay: s.TransactionDelay,
		ResetDelay:       s.ResetDelay,
		Temperature:      t,
		Pressure:         p,
		Humidity:         h,
		Filter:           f,
		GasEnabled:       !s.DisableGas,
		HeaterTemp:       s.HeaterTemp,
		HeaterDuration:   s.HeaterDuration,
		AmbientTemp:      s.AmbientTemp,
		Offsets: bme680.Offsets{
			Temperature: c.Offsets.Temperature,
			Humidity:    c.Offsets.Humidity,
			Pressure:    c.Offsets.Pressure,
		},
	}
}

// HealthConfig returns the measurement retry policy.
func (c *Config) HealthConfig() health.Config {
	return health.Config{
		MaxAttempts:     c.BusRetry.MaxAttempts,
		BaseDelay:       c.BusRetry.BaseDelay,
		FailThreshold:   c.BusRetry.FailThreshold,
		ConversionDelay: c.BusRetry.ConversionDelay,
	}
}

// LinkNetworks returns the ranked candidates.
func (c *Config) LinkNetworks() []link.Network {
	out := make([]link.Network, 0, len(c.Networks))
	for _, n := range c.Networks {
		out = append(out, link.Network{SSID: n.SSID, Password: n.Password})
	}
	return out
}

// LinkConfig returns the association timing.
func (c *Config) LinkConfig() link.Config {
	return link.Config{
		PollInterval: c.Link.PollInterval,
		JoinTimeout:  c.Link.JoinTimeout,
	}
}

// Backoff returns a reconnect backoff.
func (c *Config) Backoff() *link.Backoff {
	return link.NewBackoffWithLimits(c.Link.BackoffInitial, c.Link.BackoffMax)
}

// UplinkConfig returns the uplink settings.
func (c *Config) UplinkConfig() uplink.Config {
	return uplink.Config{
		Endpoint:   c.Uplink.Endpoint,
		Channel:    c.Uplink.Channel,
		WriteKey:   c.Uplink.WriteKey,
		Timeout:    c.Uplink.Timeout,
		MaxRetries: c.Uplink.MaxRetries,
		RetryStep:  c.Uplink.RetryStep,
	}
}

// ScheduleConfig returns the loop timing.
func (c *Config) ScheduleConfig() scheduler.Config {
	return scheduler.Config{
		Cadence:       c.Schedule.Cadence,
		SendInterval:  c.Schedule.SendInterval,
		RetryInterval: c.Schedule.RetryInterval,
	}
}
