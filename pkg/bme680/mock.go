package bme680

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Ensure MockBus implements i2c.BusCloser.
var _ i2c.BusCloser = (*MockBus)(nil)

// MockBus simulates a BME680 register file on an I²C bus for testing and
// development.
type MockBus struct {
	mu sync.Mutex

	addr   uint16
	regs   [256]byte
	frame  RawFrame
	closed bool

	// Fault injection
	failSkip int
	failNext int
	absent   bool
	stuck    bool

	tx     int
	writes []Write
}

// Write is one register write seen by the mock.
type Write struct {
	Reg, Value byte
}

// NewMockBus creates a mock device at addr holding cal and reporting frame
// on every forced conversion.
func NewMockBus(addr uint16, cal Calibration, frame RawFrame) *MockBus {
	m := &MockBus{addr: addr, frame: frame}
	m.regs[RegChipID] = ChipID

	coeff1, coeff2, val, rng, swErr := cal.encode()
	copy(m.regs[RegCoeff1:], coeff1)
	copy(m.regs[RegCoeff2:], coeff2)
	m.regs[RegResHeatVal] = val
	m.regs[RegResHeatRange] = rng
	m.regs[RegRangeSwErr] = swErr
	return m
}

func (m *MockBus) String() string {
	return fmt.Sprintf("mock-bme680@0x%02X", m.addr)
}

// SetSpeed is a no-op.
func (m *MockBus) SetSpeed(f physic.Frequency) error {
	return nil
}

// Close marks the bus closed; further transactions fail.
func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Tx reads or writes registers the way the device does: the first written
// byte selects the register, further bytes are written to it.
func (m *MockBus) Tx(addr uint16, w, r []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tx++
	switch {
	case m.closed:
		return fmt.Errorf("%s: bus closed", m)
	case m.absent || addr != m.addr:
		return fmt.Errorf("%s: nack from 0x%02X", m, addr)
	case len(w) == 0:
		return fmt.Errorf("%s: missing register address", m)
	}
	if m.failNext > 0 {
		if m.failSkip > 0 {
			m.failSkip--
		} else {
			m.failNext--
			return fmt.Errorf("%s: timeout", m)
		}
	}

	reg := w[0]
	for _, v := range w[1:] {
		m.write(reg, v)
		reg++
	}
	for i := range r {
		r[i] = m.regs[byte(int(w[0])+i)]
	}
	return nil
}

func (m *MockBus) write(reg, v byte) {
	m.writes = append(m.writes, Write{Reg: reg, Value: v})
	switch reg {
	case RegSoftReset:
		if v == SoftResetCmd {
			for _, r := range []byte{RegCtrlHum, RegCtrlMeas, RegConfig, RegCtrlGas0, RegCtrlGas1} {
				m.regs[r] = 0
			}
		}
		return
	case RegCtrlMeas:
		m.regs[reg] = v
		if Mode(v&0x03) == Forced {
			m.convert()
		}
		return
	}
	m.regs[reg] = v
}

// convert fills the data block as a finished forced conversion would.
func (m *MockBus) convert() {
	data := make([]byte, dataLen)
	if m.stuck {
		for i := range data {
			data[i] = 0xFF
		}
	} else {
		f := m.frame
		f.NewData = true
		data = encodeFrame(f)
	}
	copy(m.regs[RegData:], data)
	// The device returns to sleep mode after a forced conversion.
	m.regs[RegCtrlMeas] &^= 0x03
}

// FailNext makes the next n transactions fail.
func (m *MockBus) FailNext(n int) {
	m.FailAfter(0, n)
}

// FailAfter lets skip transactions through, then fails the following n.
func (m *MockBus) FailAfter(skip, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSkip = skip
	m.failNext = n
}

// SetAbsent makes every transaction nack.
func (m *MockBus) SetAbsent(absent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absent = absent
}

// SetStuck makes conversions produce an all-ones data block.
func (m *MockBus) SetStuck(stuck bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck = stuck
}

// SetFrame changes the frame reported by the next conversion.
func (m *MockBus) SetFrame(f RawFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = f
}

// Register returns the current value of reg.
func (m *MockBus) Register(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// Poke sets a register directly, bypassing write side effects.
func (m *MockBus) Poke(reg, v byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = v
}

// Transactions returns the number of Tx calls seen.
func (m *MockBus) Transactions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx
}

// Writes returns a copy of all register writes seen so far.
func (m *MockBus) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// MockCalibration is a representative coefficient set used by the mock device.
var MockCalibration = Calibration{
	T1: 27768, T2: 26216, T3: 3,
	P1: 36477, P2: -10685, P3: 88, P4: 7064, P5: -97,
	P6: 30, P7: 33, P8: -3742, P9: -1911, P10: 30,
	H1: 763, H2: 620, H3: 0, H4: 45, H5: 20, H6: 120, H7: -100,
	G1: -34, G2: -12235, G3: 18,
	ResHeatRange: 1, ResHeatVal: 40, RangeSwErr: 2,
}

// MockFrame is a mid-scale conversion with a stable gas reading.
var MockFrame = RawFrame{
	Pressure:     0x80000,
	Temperature:  0x80000,
	Humidity:     0x8000,
	Gas:          400,
	GasRange:     5,
	GasValid:     true,
	HeaterStable: true,
}
