package watchdog

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultMargin is the longest stretch the loop may go without a feed.
const DefaultMargin = 2 * time.Second

// Feeder is what blocking components need from the watchdog keeper.
type Feeder interface {
	// Feed renews the lease.
	Feed() error
	// Sleep pauses for d, renewing the lease at least once per margin.
	Sleep(ctx context.Context, d time.Duration) error
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Ensure Keeper implements Feeder.
var _ Feeder = (*Keeper)(nil)

// Keeper owns the liveness lease for the main loop.
type Keeper struct {
	lease  Lease
	margin time.Duration
	wait   WaitFunc
	halted bool
}

// NewKeeper wraps lease. A nil wait uses a real timer.
func NewKeeper(lease Lease, margin time.Duration, wait WaitFunc) *Keeper {
	if margin <= 0 {
		margin = DefaultMargin
	}
	if wait == nil {
		wait = Wait
	}
	return &Keeper{lease: lease, margin: margin, wait: wait}
}

// Wait is the default WaitFunc.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Margin returns the safety margin.
func (k *Keeper) Margin() time.Duration {
	return k.margin
}

// Feed renews the lease unless the keeper is halted.
func (k *Keeper) Feed() error {
	if k.halted {
		return ErrHalted
	}
	if err := k.lease.Feed(); err != nil {
		log.Errorf("failed to feed watchdog: %v", err)
		return err
	}
	return nil
}

// Sleep pauses for d as a sequence of feed-then-sleep steps, none longer
// than the margin.
func (k *Keeper) Sleep(ctx context.Context, d time.Duration) error {
	for d > 0 {
		_ = k.Feed()
		step := d
		if step > k.margin {
			step = k.margin
		}
		if err := k.wait(ctx, step); err != nil {
			return err
		}
		d -= step
	}
	return k.Feed()
}

// Halt stops renewing the lease. It cannot be undone.
func (k *Keeper) Halt() {
	if !k.halted {
		log.Error("watchdog: halting lease renewal, expecting hardware reset")
	}
	k.halted = true
}

// Halted reports whether Halt was called.
func (k *Keeper) Halted() bool {
	return k.halted
}

// Starve blocks without feeding until ctx is done. On hardware the watchdog
// resets the board long before that.
func (k *Keeper) Starve(ctx context.Context) error {
	k.Halt()
	for {
		if err := k.wait(ctx, k.margin); err != nil {
			return err
		}
	}
}

// Close disarms the lease. A halted keeper leaves the lease armed.
func (k *Keeper) Close() error {
	if k.halted {
		return nil
	}
	return k.lease.Close()
}
