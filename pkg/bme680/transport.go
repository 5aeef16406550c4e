package bme680

import (
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
)

// DefaultTransactionDelay is the pause the device needs between two bus
// transactions.
const DefaultTransactionDelay = 10 * time.Millisecond

// ErrTransport marks a failed bus transaction (nack, timeout, short read).
var ErrTransport = errors.New("bme680: bus transaction failed")

// Transport issues paced register transactions to one device address.
type Transport struct {
	dev   i2c.Dev
	delay time.Duration
	last  time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewTransport creates a register transport for addr on bus.
func NewTransport(bus i2c.Bus, addr uint16, delay time.Duration) *Transport {
	if delay < 0 {
		delay = 0
	}
	return &Transport{
		dev:   i2c.Dev{Bus: bus, Addr: addr},
		delay: delay,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Addr returns the device address.
func (t *Transport) Addr() uint16 {
	return t.dev.Addr
}

// ReadReg reads a single register.
func (t *Transport) ReadReg(reg byte) (byte, error) {
	data, err := t.ReadBlock(reg, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// ReadBlock reads n consecutive registers starting at reg.
func (t *Transport) ReadBlock(reg byte, n int) ([]byte, error) {
	data := make([]byte, n)
	if err := t.tx([]byte{reg}, data); err != nil {
		return nil, errors.Wrapf(err, "read 0x%02X (%d bytes)", reg, n)
	}
	return data, nil
}

// WriteReg writes value to reg.
func (t *Transport) WriteReg(reg, value byte) error {
	if err := t.tx([]byte{reg, value}, nil); err != nil {
		return errors.Wrapf(err, "write 0x%02X", reg)
	}
	return nil
}

// Wait blocks for d using the transport's clock.
func (t *Transport) Wait(d time.Duration) {
	if d > 0 {
		t.sleep(d)
	}
}

func (t *Transport) tx(w, r []byte) error {
	t.pace()
	err := t.dev.Tx(w, r)
	t.last = t.now()
	if err != nil {
		return errors.Wrap(ErrTransport, err.Error())
	}
	return nil
}

// pace waits until the minimum delay since the previous transaction elapsed.
func (t *Transport) pace() {
	if t.delay == 0 {
		return
	}
	if t.last.IsZero() {
		t.sleep(t.delay)
		return
	}
	if remaining := t.delay - t.now().Sub(t.last); remaining > 0 {
		t.sleep(remaining)
	}
}
