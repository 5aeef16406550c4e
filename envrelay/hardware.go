package main

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/config"
	"github.com/itohio/envrelay/pkg/health"
	"github.com/itohio/envrelay/pkg/link"
	"github.com/itohio/envrelay/pkg/uplink"
	"github.com/itohio/envrelay/pkg/watchdog"
)

// hardware owns the I²C bus so that a reinitialisation can replace it.
type hardware struct {
	cfg  *config.Config
	mock bool

	bus     i2c.BusCloser
	mockBus *bme680.MockBus
	sensor  *bme680.Sensor
}

func (h *hardware) openBus() (i2c.BusCloser, error) {
	if h.mock {
		if h.mockBus == nil {
			h.mockBus = bme680.NewMockBus(h.cfg.Sensor.Address, bme680.MockCalibration, bme680.MockFrame)
		}
		return h.mockBus, nil
	}
	bus, err := i2creg.Open(h.cfg.Sensor.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open I2C bus %q", h.cfg.Sensor.Bus)
	}
	return bus, nil
}

// open initialises the host drivers, then the bus and the sensor.
func (h *hardware) open() (*bme680.Sensor, error) {
	if !h.mock {
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "failed to initialise periph host drivers")
		}
	}
	if err := h.connect(); err != nil {
		return nil, err
	}
	log.Infof("BME680 ready on %s at 0x%02X", h.bus, h.sensor.Address())
	return h.sensor, nil
}

// reopen implements health.Opener: a fresh bus handle and a fresh
// calibration read.
func (h *hardware) reopen(ctx context.Context) (health.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.bus != nil && !h.mock {
		if err := h.bus.Close(); err != nil {
			log.Debugf("closing stale bus: %v", err)
		}
	}
	h.bus = nil
	h.sensor = nil

	if err := h.connect(); err != nil {
		return nil, err
	}
	return h.sensor, nil
}

func (h *hardware) connect() error {
	bus, err := h.openBus()
	if err != nil {
		return err
	}
	opts := h.cfg.SensorOptions()
	s, err := bme680.New(bus, &opts)
	if err != nil {
		if !h.mock {
			bus.Close()
		}
		return err
	}
	h.bus = bus
	h.sensor = s
	return nil
}

func (h *hardware) close() {
	if h.sensor != nil {
		if err := h.sensor.Halt(); err != nil {
			log.Debugf("sensor sleep: %v", err)
		}
	}
	if h.bus != nil {
		h.bus.Close()
	}
}

// openLease arms the hardware watchdog, or a software lease in mock mode or
// when the device is missing.
func openLease(cfg *config.Config, mock bool) watchdog.Lease {
	if mock {
		return watchdog.NewSoft(cfg.Watchdog.Timeout)
	}
	dev, err := watchdog.Open(cfg.Watchdog.Device, cfg.Watchdog.Timeout)
	if err != nil {
		log.Warnf("%v, continuing with a software lease", err)
		return watchdog.NewSoft(cfg.Watchdog.Timeout)
	}
	log.Infof("watchdog %s armed, timeout %v", cfg.Watchdog.Device, cfg.Watchdog.Timeout)
	return dev
}

func openRadio(cfg *config.Config, mock bool, keeper *watchdog.Keeper) (link.Radio, error) {
	if !mock {
		return link.NewSupplicant(cfg.Link.Interface, keeper.Sleep, keeper.Margin()/2)
	}
	visible := cfg.Mock.Visible
	if len(visible) == 0 {
		for _, n := range cfg.Networks {
			visible = append(visible, n.SSID)
		}
	}
	radio := link.NewMockRadio(visible...)
	for _, ssid := range visible {
		radio.Accept(ssid, cfg.Mock.JoinPolls)
	}
	return radio, nil
}

// Ensure mockDoer implements uplink.Doer.
var _ uplink.Doer = mockDoer{}

// mockDoer accepts every post without touching the network.
type mockDoer struct{}

func (mockDoer) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	log.Debugf("mock uplink POST %s %s", req.URL, body)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}, nil
}
