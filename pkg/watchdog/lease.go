// Package watchdog keeps the hardware watchdog lease alive across the
// cooperative main loop.
//
// Every component that may block longer than the safety margin feeds the
// lease before and after the blocking call, and long pauses are split into
// feed-then-sleep steps no longer than the margin. Halting the Keeper stops
// renewals on purpose: the watchdog then resets the board.
package watchdog

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrHalted is returned by Feed once the keeper has been halted.
var ErrHalted = errors.New("watchdog: halted, lease no longer renewed")

// Lease is a liveness deadline that must be renewed before it elapses.
type Lease interface {
	Feed() error
	Close() error
}

// Ensure Soft implements Lease.
var _ Lease = (*Soft)(nil)

// Soft is a software lease. It never resets anything; it only tracks the
// deadline so that mock runs and tests can observe starvation.
type Soft struct {
	mu       sync.Mutex
	timeout  time.Duration
	deadline time.Time
	feeds    int
	closed   bool

	now func() time.Time
}

// NewSoft creates a software lease armed for timeout.
func NewSoft(timeout time.Duration) *Soft {
	return newSoft(timeout, time.Now)
}

func newSoft(timeout time.Duration, now func() time.Time) *Soft {
	return &Soft{
		timeout:  timeout,
		deadline: now().Add(timeout),
		now:      now,
	}
}

// Feed renews the deadline.
func (s *Soft) Feed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("watchdog: lease closed")
	}
	s.feeds++
	s.deadline = s.now().Add(s.timeout)
	return nil
}

// Close disarms the lease.
func (s *Soft) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Expired reports whether the deadline passed without a renewal.
func (s *Soft) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.now().After(s.deadline)
}

// Feeds returns the number of renewals so far.
func (s *Soft) Feeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds
}
