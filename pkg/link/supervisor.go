// Package link keeps the station-mode Wi-Fi association alive.
//
// The Supervisor walks a ranked list of networks, joins the first visible
// one and polls for association with the watchdog fed between polls. It
// never fails hard: exhausting the list yields a disconnected Result and
// the caller schedules the next attempt with a Backoff.
package link

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/watchdog"
)

// ErrNoCandidate is reported when no configured network could be joined.
var ErrNoCandidate = errors.New("link: no configured network available")

// State of the supervisor.
type State int

const (
	Disconnected State = iota
	Scanning
	Associating
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Associating:
		return "associating"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Network is one ranked candidate.
type Network struct {
	SSID     string
	Password string
}

// Config bounds association attempts.
type Config struct {
	PollInterval time.Duration
	JoinTimeout  time.Duration
}

// DefaultConfig polls every second for up to 20 seconds.
var DefaultConfig = Config{
	PollInterval: time.Second,
	JoinTimeout:  20 * time.Second,
}

// Result of a Connect call.
type Result struct {
	Connected bool
	SSID      string
	Tried     []string
	Err       error
}

// Supervisor owns the radio association.
type Supervisor struct {
	radio    Radio
	networks []Network
	feeder   watchdog.Feeder
	cfg      Config

	state State
	ssid  string
}

// NewSupervisor creates a supervisor over networks, highest priority first.
func NewSupervisor(radio Radio, networks []Network, feeder watchdog.Feeder, cfg Config) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig.PollInterval
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultConfig.JoinTimeout
	}
	return &Supervisor{
		radio:    radio,
		networks: networks,
		feeder:   feeder,
		cfg:      cfg,
	}
}

// State returns the last observed state.
func (s *Supervisor) State() State { return s.state }

// SSID returns the joined network, or "" when disconnected.
func (s *Supervisor) SSID() string { return s.ssid }

// Connected asks the radio whether the association still holds.
func (s *Supervisor) Connected() bool {
	ok, err := s.radio.IsConnected()
	if err != nil {
		log.Warnf("link state query failed: %v", err)
	}
	if !ok && s.state == Connected {
		log.WithField("ssid", s.ssid).Warn("link lost")
		s.state = Disconnected
		s.ssid = ""
	}
	return ok
}

// Connect associates with the best visible network.
func (s *Supervisor) Connect(ctx context.Context) Result {
	if ok, _ := s.radio.IsConnected(); ok {
		s.state = Connected
		return Result{Connected: true, SSID: s.ssid}
	}

	s.state = Scanning
	_ = s.feeder.Feed()
	visible, err := s.radio.Scan(ctx)
	_ = s.feeder.Feed()
	if err != nil {
		s.state = Disconnected
		log.Warnf("scan failed: %v", err)
		return Result{Err: errors.Wrap(err, "link scan")}
	}
	log.Debugf("visible networks: %v", visible)

	inRange := make(map[string]bool, len(visible))
	for _, v := range visible {
		inRange[v] = true
	}

	var res Result
	for _, n := range s.networks {
		if !inRange[n.SSID] {
			continue
		}
		res.Tried = append(res.Tried, n.SSID)

		ok, err := s.join(ctx, n)
		if err != nil && ctx.Err() != nil {
			s.state = Disconnected
			res.Err = ctx.Err()
			return res
		}
		if ok {
			s.state = Connected
			s.ssid = n.SSID
			log.WithField("ssid", n.SSID).Info("link up")
			res.Connected = true
			res.SSID = n.SSID
			return res
		}
		if err != nil {
			log.WithField("ssid", n.SSID).Warnf("join failed: %v", err)
		} else {
			log.WithField("ssid", n.SSID).Warnf("join timed out after %v", s.cfg.JoinTimeout)
		}
		if err := s.radio.Leave(); err != nil {
			log.Debugf("leave %s: %v", n.SSID, err)
		}
	}

	s.state = Disconnected
	s.ssid = ""
	res.Err = ErrNoCandidate
	log.Warn("no configured network could be joined")
	return res
}

func (s *Supervisor) join(ctx context.Context, n Network) (bool, error) {
	s.state = Associating
	log.WithField("ssid", n.SSID).Info("joining")

	_ = s.feeder.Feed()
	if err := s.radio.Join(ctx, n.SSID, n.Password); err != nil {
		return false, err
	}

	for waited := time.Duration(0); waited < s.cfg.JoinTimeout; waited += s.cfg.PollInterval {
		ok, err := s.radio.IsConnected()
		if err != nil {
			log.Debugf("association poll: %v", err)
		}
		if ok {
			return true, nil
		}
		if err := s.feeder.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Disconnect drops the association.
func (s *Supervisor) Disconnect() error {
	s.state = Disconnected
	s.ssid = ""
	return s.radio.Leave()
}
