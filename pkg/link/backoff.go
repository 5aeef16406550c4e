package link

import (
	"sync"
	"time"
)

const (
	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff = 1 * time.Second
	// MaxBackoff caps the reconnect delay.
	MaxBackoff = 60 * time.Second
)

// Ensure Backoff implements Delayer.
var _ Delayer = (*Backoff)(nil)

// Delayer hands out reconnect delays.
type Delayer interface {
	Next() time.Duration
	Reset()
	Attempts() int
}

// Backoff is a doubling reconnect delay without jitter.
type Backoff struct {
	mu       sync.Mutex
	initial  time.Duration
	max      time.Duration
	attempts int
}

// NewBackoff creates a backoff with the default 1 s to 60 s range.
func NewBackoff() *Backoff {
	return NewBackoffWithLimits(InitialBackoff, MaxBackoff)
}

// NewBackoffWithLimits creates a backoff. Non-positive limits fall back to
// the defaults.
func NewBackoffWithLimits(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max <= 0 {
		max = MaxBackoff
	}
	return &Backoff{initial: initial, max: max}
}

// Delay returns the delay of retry attempt k (1-based): min(initial·2^(k-1), max).
func (b *Backoff) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	d := b.initial
	for i := 1; i < k; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		return b.max
	}
	return d
}

// Next advances the attempt counter and returns its delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return b.Delay(b.attempts)
}

// Reset clears the counter. Call it after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
