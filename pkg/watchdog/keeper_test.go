package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	return nil
}

func TestKeeper_SleepSplitsIntoMarginSteps(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	lease := newSoft(3*time.Second, clock.Now)

	var steps []time.Duration
	k := NewKeeper(lease, 2*time.Second, func(ctx context.Context, d time.Duration) error {
		steps = append(steps, d)
		assert.False(t, lease.Expired(), "lease expired during sleep")
		return clock.Wait(ctx, d)
	})

	require.NoError(t, k.Sleep(context.Background(), 7*time.Second))

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, time.Second}, steps)
	assert.Equal(t, 5, lease.Feeds()) // one before each step plus one at the end
	assert.False(t, lease.Expired())
}

func TestKeeper_SleepCancelled(t *testing.T) {
	lease := NewSoft(time.Minute)
	k := NewKeeper(lease, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := k.Sleep(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeeper_HaltStopsRenewals(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	lease := newSoft(3*time.Second, clock.Now)
	k := NewKeeper(lease, time.Second, clock.Wait)

	require.NoError(t, k.Feed())
	assert.Equal(t, 1, lease.Feeds())

	k.Halt()
	assert.True(t, k.Halted())
	assert.ErrorIs(t, k.Feed(), ErrHalted)
	_ = k.Sleep(context.Background(), 5*time.Second)

	assert.Equal(t, 1, lease.Feeds())
	assert.True(t, lease.Expired())
}

func TestKeeper_StarveUntilCancelled(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	lease := newSoft(3*time.Second, clock.Now)

	ctx, cancel := context.WithCancel(context.Background())
	waits := 0
	k := NewKeeper(lease, time.Second, func(ctx context.Context, d time.Duration) error {
		waits++
		if waits == 10 {
			cancel()
		}
		return clock.Wait(ctx, d)
	})

	err := k.Starve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, lease.Feeds())
	assert.True(t, lease.Expired())
}

func TestKeeper_Margin(t *testing.T) {
	assert.Equal(t, DefaultMargin, NewKeeper(NewSoft(time.Minute), 0, nil).Margin())
	assert.Equal(t, 500*time.Millisecond, NewKeeper(NewSoft(time.Minute), 500*time.Millisecond, nil).Margin())
}

func TestKeeper_CloseWhenHaltedKeepsLeaseArmed(t *testing.T) {
	lease := NewSoft(time.Minute)
	k := NewKeeper(lease, time.Second, nil)
	k.Halt()

	require.NoError(t, k.Close())
	assert.NoError(t, lease.Feed(), "halted keeper must not disarm the lease")
}

func TestKeeper_CloseDisarms(t *testing.T) {
	lease := NewSoft(time.Minute)
	k := NewKeeper(lease, time.Second, nil)

	require.NoError(t, k.Close())
	assert.Error(t, lease.Feed())
}

func TestSoft_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	lease := newSoft(2*time.Second, clock.Now)

	clock.now = clock.now.Add(time.Second)
	assert.False(t, lease.Expired())
	require.NoError(t, lease.Feed())

	clock.now = clock.now.Add(1500 * time.Millisecond)
	assert.False(t, lease.Expired())

	clock.now = clock.now.Add(time.Second)
	assert.True(t, lease.Expired())
}
