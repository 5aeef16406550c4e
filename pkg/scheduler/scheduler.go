// Package scheduler runs the cooperative measure, display and uplink loop.
//
// One cycle is: feed the watchdog, measure, derive IAQ, render, record
// metrics, keep the link up and decide whether to send, then sleep the outer
// cadence in watchdog-safe steps. Nothing runs concurrently.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/display"
	"github.com/itohio/envrelay/pkg/health"
	"github.com/itohio/envrelay/pkg/iaq"
	"github.com/itohio/envrelay/pkg/link"
	"github.com/itohio/envrelay/pkg/uplink"
	"github.com/itohio/envrelay/pkg/watchdog"
)

// ErrHalted is returned by Run after the sensor could not be recovered and
// the watchdog was left to reset the board.
var ErrHalted = errors.New("scheduler: halted, waiting for watchdog reset")

// Measurer runs measurement cycles.
type Measurer interface {
	Measure(ctx context.Context) health.Result
	State() health.State
}

// Linker keeps the network association.
type Linker interface {
	Connect(ctx context.Context) link.Result
	Connected() bool
}

// Sender posts readings.
type Sender interface {
	Send(ctx context.Context, r bme680.Reading, iaq *float64) uplink.Result
}

// Renderer shows one cycle.
type Renderer interface {
	Render(f display.Frame) error
}

// Recorder receives cycle outcomes.
type Recorder interface {
	Observe(r bme680.Reading, iaq *float64)
	Missed(failures int)
	Reinit(ok bool)
	Link(ok bool)
	Uplink(ok bool, attempts int)
}

// Keeper is the watchdog side of the loop.
type Keeper interface {
	watchdog.Feeder
	Halt()
	Starve(ctx context.Context) error
}

var (
	_ Measurer = (*health.Monitor)(nil)
	_ Linker   = (*link.Supervisor)(nil)
	_ Sender   = (*uplink.Uplink)(nil)
	_ Renderer = (*display.Console)(nil)
	_ Keeper   = (*watchdog.Keeper)(nil)
)

// Config sets the loop timing.
type Config struct {
	Cadence       time.Duration
	SendInterval  time.Duration
	RetryInterval time.Duration
}

// DefaultConfig: a reading every 30 s, a send every 10 min, a retry one
// minute after a failed send.
var DefaultConfig = Config{
	Cadence:       30 * time.Second,
	SendInterval:  10 * time.Minute,
	RetryInterval: time.Minute,
}

// Deps are the components the loop drives. Link, Uplink, Display and
// Metrics are optional.
type Deps struct {
	Monitor Measurer
	Keeper  Keeper
	Link    Linker
	Backoff link.Delayer
	Uplink  Sender
	Display Renderer
	Metrics Recorder
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler is the main loop state.
type Scheduler struct {
	cfg Config
	Deps

	log    *log.Entry
	bootID string

	nextSend time.Time
	nextLink time.Time
	cycles   int
}

// New creates a scheduler. The first send happens on the first cycle.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultConfig.Cadence
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = DefaultConfig.SendInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultConfig.RetryInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Backoff == nil {
		deps.Backoff = link.NewBackoff()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	id := uuid.NewString()
	return &Scheduler{
		cfg:    cfg,
		Deps:   deps,
		bootID: id,
		log:    log.WithField("boot", id),
	}
}

// BootID identifies this run in logs.
func (s *Scheduler) BootID() string { return s.bootID }

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() int { return s.cycles }

// Run loops until ctx is done or the sensor halts. A cancelled context is a
// clean exit and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(log.Fields{
		"cadence":  s.cfg.Cadence,
		"interval": s.cfg.SendInterval,
	}).Info("scheduler started")

	for {
		err := s.Step(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrHalted):
			s.log.Error("sensor unrecoverable, starving watchdog")
			_ = s.Keeper.Starve(ctx)
			return ErrHalted
		case ctx.Err() != nil:
			s.log.Info("scheduler stopped")
			return nil
		default:
			return err
		}
	}
}

// Step runs one cycle followed by the cadence sleep.
func (s *Scheduler) Step(ctx context.Context) error {
	_ = s.Keeper.Feed()

	res := s.Monitor.Measure(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if res.Reinitialized {
		s.Metrics.Reinit(true)
	}
	if s.Monitor.State() == health.Halted {
		s.Metrics.Reinit(false)
		s.Keeper.Halt()
		return ErrHalted
	}

	frame := display.Frame{
		Time:  s.Now(),
		Valid: res.OK,
	}

	var score *float64
	if res.OK {
		frame.Reading = res.Reading
		if v, ok := iaq.FromReading(res.Reading); ok {
			score = &v
		}
		frame.IAQ = score
		s.Metrics.Observe(res.Reading, score)
	} else {
		s.Metrics.Missed(res.Failures)
		s.log.WithFields(log.Fields{
			"failures": res.Failures,
			"attempts": res.Attempts,
		}).Warnf("no reading this cycle: %v", res.Err)
	}

	s.network(ctx, res, score, &frame)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if s.Display != nil {
		if err := s.Display.Render(frame); err != nil {
			s.log.Warnf("display: %v", err)
		}
	}

	s.cycles++
	return s.Keeper.Sleep(ctx, s.cfg.Cadence)
}

// network keeps the link up and runs the uplink when the send gate is open.
func (s *Scheduler) network(ctx context.Context, res health.Result, score *float64, frame *display.Frame) {
	if s.Link == nil {
		frame.Offline = true
		return
	}

	now := s.Now()
	up := s.Link.Connected()
	if !up {
		if now.Before(s.nextLink) {
			frame.Reconnect = s.nextLink.Sub(now)
			return
		}
		lr := s.Link.Connect(ctx)
		s.Metrics.Link(lr.Connected)
		if !lr.Connected {
			delay := s.Backoff.Next()
			s.nextLink = s.Now().Add(delay)
			frame.Reconnect = delay
			s.log.WithFields(log.Fields{
				"attempt": s.Backoff.Attempts(),
				"delay":   delay,
			}).Warnf("link down: %v", lr.Err)
			return
		}
		s.Backoff.Reset()
		s.nextLink = time.Time{}
		up = true
	}
	frame.LinkUp = up

	now = s.Now()
	if !res.OK || s.Uplink == nil || now.Before(s.nextSend) {
		frame.NextSend = s.nextSend.Sub(now)
		return
	}

	ur := s.Uplink.Send(ctx, res.Reading, score)
	s.Metrics.Uplink(ur.Sent, ur.Attempts)
	sent := ur.Sent
	frame.Sent = &sent
	if ur.Sent {
		s.nextSend = now.Add(s.cfg.SendInterval)
	} else {
		s.nextSend = now.Add(s.cfg.RetryInterval)
		s.log.WithFields(log.Fields{
			"attempts": ur.Attempts,
			"status":   ur.Status,
		}).Warnf("uplink failed, retrying in %v: %v", s.cfg.RetryInterval, ur.Err)
	}
	frame.NextSend = s.nextSend.Sub(s.Now())
}

type nopRecorder struct{}

func (nopRecorder) Observe(bme680.Reading, *float64) {}
func (nopRecorder) Missed(int)                       {}
func (nopRecorder) Reinit(bool)                      {}
func (nopRecorder) Link(bool)                        {}
func (nopRecorder) Uplink(bool, int)                 {}
