//go:build linux

package watchdog

import (
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Ensure Device implements Lease.
var _ Lease = (*Device)(nil)

// Device is the kernel watchdog character device. Opening it arms the
// hardware timer.
type Device struct {
	f *os.File
}

// Open arms the watchdog at path and sets its timeout when the driver
// supports it.
func Open(path string, timeout time.Duration) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open watchdog %s", path)
	}

	if secs := int(timeout / time.Second); secs > 0 {
		if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
			log.Warnf("watchdog %s: cannot set timeout to %ds, keeping driver default: %v", path, secs, err)
		}
	}

	return &Device{f: f}, nil
}

// Feed sends a keepalive.
func (d *Device) Feed() error {
	if err := unix.IoctlWatchdogKeepalive(int(d.f.Fd())); err != nil {
		return errors.Wrap(err, "watchdog keepalive")
	}
	return nil
}

// Close disarms the watchdog with the magic close character and releases
// the device.
func (d *Device) Close() error {
	if _, err := d.f.Write([]byte("V")); err != nil {
		log.Warnf("watchdog magic close failed, board will reset: %v", err)
	}
	return d.f.Close()
}
