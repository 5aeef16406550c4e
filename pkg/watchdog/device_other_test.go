//go:build !linux

package watchdog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDevice_Unsupported(t *testing.T) {
	d, err := Open("/dev/watchdog", 8*time.Second)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrUnsupported)

	var dev Device
	assert.ErrorIs(t, dev.Feed(), ErrUnsupported)
	assert.NoError(t, dev.Close())
}
