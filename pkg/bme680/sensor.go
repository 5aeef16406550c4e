package bme680

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
)

// ErrNotFound is returned when no BME680 answers at either address. It points
// at wiring or configuration and is not worth retrying.
var ErrNotFound = errors.New("bme680: device not found")

var (
	errConfigWrite = errors.New("bme680: failed to configure sensor, check connection")
	errSoftReset   = errors.New("bme680: failed to perform a soft reset")
)

// Options configures the sensor.
type Options struct {
	Address          uint16
	FallbackAddress  uint16
	TransactionDelay time.Duration
	ResetDelay       time.Duration

	Temperature Oversampling
	Pressure    Oversampling
	Humidity    Oversampling
	Filter      FilterCoefficient

	// GasEnabled turns on heater profile 0 and gas conversions.
	GasEnabled     bool
	HeaterTemp     int // °C
	HeaterDuration int // ms
	AmbientTemp    int // °C

	Offsets Offsets
}

// DefaultOptions mirrors the settings the board has always run with:
// T x2, P x16, H x2, filter coefficient 1, heater 300 °C for 100 ms.
var DefaultOptions = Options{
	Address:          AddressPrimary,
	FallbackAddress:  AddressSecondary,
	TransactionDelay: DefaultTransactionDelay,
	ResetDelay:       10 * time.Millisecond,
	Temperature:      Sampling2X,
	Pressure:         Sampling16X,
	Humidity:         Sampling2X,
	Filter:           Coeff1,
	GasEnabled:       true,
	HeaterTemp:       300,
	HeaterDuration:   100,
	AmbientTemp:      DefaultAmbientTemp,
}

// Sensor is an initialised BME680. A Sensor always carries a complete
// calibration set; New either returns one or fails.
type Sensor struct {
	t    *Transport
	cal  Calibration
	opts Options
}

// New probes the primary then the fallback address, reads the calibration
// coefficients and configures the device.
func New(bus i2c.Bus, opts *Options) (*Sensor, error) {
	o := DefaultOptions
	if opts != nil {
		o = *opts
	}

	t, err := probe(bus, &o)
	if err != nil {
		return nil, err
	}
	log.Debugf("bme680 found at 0x%02X", t.Addr())

	cal, err := readCalibration(t)
	if err != nil {
		return nil, err
	}

	s := &Sensor{t: t, cal: cal, opts: o}
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func probe(bus i2c.Bus, o *Options) (*Transport, error) {
	addrs := []uint16{o.Address}
	if o.FallbackAddress != 0 && o.FallbackAddress != o.Address {
		addrs = append(addrs, o.FallbackAddress)
	}

	var lastErr error
	for _, addr := range addrs {
		t := NewTransport(bus, addr, o.TransactionDelay)
		id, err := t.ReadReg(RegChipID)
		if err != nil {
			lastErr = err
			continue
		}
		if id == ChipID {
			return t, nil
		}
		lastErr = errors.Errorf("unexpected chip id 0x%02X at 0x%02X", id, addr)
	}
	if lastErr == nil {
		return nil, ErrNotFound
	}
	return nil, errors.Wrap(ErrNotFound, lastErr.Error())
}

func (s *Sensor) setup() error {
	if err := s.t.WriteReg(RegSoftReset, SoftResetCmd); err != nil {
		return errors.Wrap(errSoftReset, err.Error())
	}
	s.t.Wait(s.opts.ResetDelay)

	if err := s.t.WriteReg(RegCtrlHum, byte(s.opts.Humidity)&0x07); err != nil {
		return errors.Wrap(errConfigWrite, err.Error())
	}

	if s.opts.GasEnabled {
		if err := s.ConfigureHeater(s.opts.HeaterTemp, s.opts.HeaterDuration); err != nil {
			return err
		}
		if err := s.t.WriteReg(RegCtrlGas1, RunGas); err != nil {
			return errors.Wrap(errConfigWrite, err.Error())
		}
	} else if err := s.t.WriteReg(RegCtrlGas1, 0x00); err != nil {
		return errors.Wrap(errConfigWrite, err.Error())
	}

	if err := s.t.WriteReg(RegConfig, byte(s.opts.Filter&0x07)<<2); err != nil {
		return errors.Wrap(errConfigWrite, err.Error())
	}
	return nil
}

// ConfigureHeater programs heater profile 0.
func (s *Sensor) ConfigureHeater(targetC, durationMs int) error {
	ambient := s.opts.AmbientTemp
	if ambient == 0 {
		ambient = DefaultAmbientTemp
	}
	if err := s.t.WriteReg(RegResHeat0, HeaterResistance(&s.cal, targetC, ambient)); err != nil {
		return errors.Wrap(errConfigWrite, err.Error())
	}
	if err := s.t.WriteReg(RegGasWait0, GasWait(durationMs)); err != nil {
		return errors.Wrap(errConfigWrite, err.Error())
	}
	return nil
}

// Address returns the address the device answered on.
func (s *Sensor) Address() uint16 {
	return s.t.Addr()
}

// Calibration returns a copy of the coefficients.
func (s *Sensor) Calibration() Calibration {
	return s.cal
}

// GasEnabled reports whether gas conversions are configured.
func (s *Sensor) GasEnabled() bool {
	return s.opts.GasEnabled
}

// Trigger starts a single forced-mode conversion.
func (s *Sensor) Trigger() error {
	return s.t.WriteReg(RegCtrlMeas, s.ctrlMeas(Forced))
}

// Fetch reads and decodes the data block.
func (s *Sensor) Fetch() (RawFrame, error) {
	data, err := s.t.ReadBlock(RegData, dataLen)
	if err != nil {
		return RawFrame{}, err
	}
	return DecodeFrame(data)
}

// Compensate converts f using this device's calibration and offsets.
func (s *Sensor) Compensate(f RawFrame) Reading {
	return Compensate(&s.cal, f, s.opts.Offsets)
}

// Halt puts the device to sleep.
func (s *Sensor) Halt() error {
	return s.t.WriteReg(RegCtrlMeas, s.ctrlMeas(Sleep))
}

func (s *Sensor) ctrlMeas(m Mode) byte {
	return byte(s.opts.Temperature&0x07)<<5 | byte(s.opts.Pressure&0x07)<<2 | byte(m)
}
