//go:build !linux

package watchdog

import (
	"time"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned by Device methods outside Linux.
var ErrUnsupported = errors.New("watchdog: device not supported on this platform")

// Ensure Device implements Lease.
var _ Lease = (*Device)(nil)

// Device is unavailable outside Linux.
type Device struct{}

// Open always fails outside Linux; use a Soft lease instead.
func Open(path string, timeout time.Duration) (*Device, error) {
	return nil, errors.Wrapf(ErrUnsupported, "watchdog device %s", path)
}

// Feed always fails; a Device is never opened on this platform.
func (d *Device) Feed() error { return ErrUnsupported }

// Close has nothing to release.
func (d *Device) Close() error { return nil }
