// Package health runs BME680 measurement cycles with bounded retries and
// escalates repeated bus failures to a full reinitialisation.
package health

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/watchdog"
)

var (
	// ErrHalted is returned once reinitialisation has failed. The monitor
	// never measures again.
	ErrHalted = errors.New("health: sensor halted after failed reinitialisation")
	// ErrExhausted wraps the last attempt error of a failed cycle.
	ErrExhausted = errors.New("health: measurement attempts exhausted")
)

// State of the monitor.
type State int

const (
	Idle State = iota
	Measuring
	Success
	Failed
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Measuring:
		return "measuring"
	case Success:
		return "success"
	case Failed:
		return "failed"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// Sensor is the part of bme680.Sensor the monitor drives.
type Sensor interface {
	Trigger() error
	Fetch() (bme680.RawFrame, error)
	Compensate(bme680.RawFrame) bme680.Reading
}

// Ensure bme680.Sensor implements Sensor.
var _ Sensor = (*bme680.Sensor)(nil)

// Opener builds a fresh sensor: new bus handle and freshly read calibration.
type Opener func(ctx context.Context) (Sensor, error)

// Config bounds the retry policy.
type Config struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	FailThreshold   int
	ConversionDelay time.Duration
}

// DefaultConfig mirrors the firmware constants.
var DefaultConfig = Config{
	MaxAttempts:     3,
	BaseDelay:       100 * time.Millisecond,
	FailThreshold:   5,
	ConversionDelay: 200 * time.Millisecond,
}

// Result of one measurement cycle. OK false means "no reading"; Err carries
// the reason.
type Result struct {
	OK            bool
	Reading       bme680.Reading
	Attempts      int
	Failures      int
	Reinitialized bool
	Err           error
}

// Monitor owns the sensor and its consecutive failure counter.
type Monitor struct {
	sensor Sensor
	open   Opener
	feeder watchdog.Feeder
	cfg    Config

	state    State
	failures int
	reinits  int
}

// NewMonitor creates a monitor around an already initialised sensor.
func NewMonitor(sensor Sensor, open Opener, feeder watchdog.Feeder, cfg Config) *Monitor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = DefaultConfig.FailThreshold
	}
	return &Monitor{
		sensor: sensor,
		open:   open,
		feeder: feeder,
		cfg:    cfg,
	}
}

// State returns the current state.
func (m *Monitor) State() State { return m.state }

// Failures returns the consecutive failed cycle count.
func (m *Monitor) Failures() int { return m.failures }

// Reinits returns how many reinitialisations succeeded.
func (m *Monitor) Reinits() int { return m.reinits }

// MaxRetryDelay caps the exponential retry pause.
const MaxRetryDelay = time.Minute

// RetryDelay returns the pause after failed attempt n (1-based), doubling
// from BaseDelay up to MaxRetryDelay.
func (c Config) RetryDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if c.BaseDelay <= 0 {
		return 0
	}
	if c.BaseDelay >= MaxRetryDelay {
		return MaxRetryDelay
	}
	d := c.BaseDelay
	for i := 1; i < n && d < MaxRetryDelay; i++ {
		d <<= 1
	}
	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

// Measure runs one cycle. It never returns a reading together with an error.
func (m *Monitor) Measure(ctx context.Context) Result {
	if m.state == Halted {
		return Result{Failures: m.failures, Err: ErrHalted}
	}
	m.state = Measuring

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		reading, err := m.attempt(ctx)
		if err == nil {
			m.state = Success
			m.failures = 0
			return Result{OK: true, Reading: reading, Attempts: attempt}
		}
		if ctx.Err() != nil {
			m.state = Failed
			return Result{Attempts: attempt, Failures: m.failures, Err: ctx.Err()}
		}
		lastErr = err

		remaining := m.cfg.MaxAttempts - attempt
		log.WithFields(log.Fields{
			"attempt":   attempt,
			"remaining": remaining,
		}).Warnf("sensor read failed: %v", err)

		if remaining > 0 {
			if err := m.feeder.Sleep(ctx, m.cfg.RetryDelay(attempt)); err != nil {
				m.state = Failed
				return Result{Attempts: attempt, Failures: m.failures, Err: err}
			}
		}
	}

	m.state = Failed
	m.failures++
	res := Result{
		Attempts: m.cfg.MaxAttempts,
		Failures: m.failures,
		Err:      errors.Wrap(ErrExhausted, lastErr.Error()),
	}
	log.WithField("failures", m.failures).Errorf("measurement cycle failed after %d attempts", m.cfg.MaxAttempts)

	if m.failures >= m.cfg.FailThreshold {
		if err := m.reinit(ctx); err != nil {
			res.Err = err
			res.Failures = m.failures
			return res
		}
		res.Reinitialized = true
		res.Failures = m.failures
	}
	return res
}

func (m *Monitor) attempt(ctx context.Context) (bme680.Reading, error) {
	_ = m.feeder.Feed()
	if err := m.sensor.Trigger(); err != nil {
		return bme680.Reading{}, errors.Wrap(err, "trigger")
	}
	if err := m.feeder.Sleep(ctx, m.cfg.ConversionDelay); err != nil {
		return bme680.Reading{}, err
	}
	frame, err := m.sensor.Fetch()
	_ = m.feeder.Feed()
	if err != nil {
		return bme680.Reading{}, errors.Wrap(err, "fetch")
	}
	if err := frame.Plausible(); err != nil {
		return bme680.Reading{}, err
	}
	return m.sensor.Compensate(frame), nil
}

func (m *Monitor) reinit(ctx context.Context) error {
	log.WithField("failures", m.failures).Warn("failure threshold reached, reinitialising sensor")

	_ = m.feeder.Feed()
	var (
		s   Sensor
		err error
	)
	if m.open == nil {
		err = errors.New("no opener configured")
	} else {
		s, err = m.open(ctx)
	}
	_ = m.feeder.Feed()
	if err != nil {
		m.state = Halted
		log.Errorf("sensor reinitialisation failed: %v", err)
		return errors.Wrap(ErrHalted, err.Error())
	}

	m.sensor = s
	m.failures = 0
	m.reinits++
	log.Info("sensor reinitialised")
	return nil
}
