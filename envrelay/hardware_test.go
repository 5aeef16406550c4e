package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/config"
	"github.com/itohio/envrelay/pkg/watchdog"
)

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Sensor.TransactionDelay = 1
	cfg.Sensor.ResetDelay = 1
	cfg.Networks = []config.NetworkConfig{{SSID: "home"}, {SSID: "phone"}}
	cfg.Uplink.Channel = "1"
	return cfg
}

func TestHardware_MockOpenAndReopen(t *testing.T) {
	hw := &hardware{cfg: mockConfig(), mock: true}

	s, err := hw.open()
	require.NoError(t, err)
	assert.Equal(t, bme680.AddressPrimary, s.Address())

	fresh, err := hw.reopen(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s, fresh)
	assert.Same(t, hw.sensor, fresh)

	hw.close()
}

func TestHardware_MockAbsentSensor(t *testing.T) {
	hw := &hardware{cfg: mockConfig(), mock: true}
	hw.mockBus = bme680.NewMockBus(bme680.AddressPrimary, bme680.MockCalibration, bme680.MockFrame)
	hw.mockBus.SetAbsent(true)

	_, err := hw.open()
	assert.ErrorIs(t, err, bme680.ErrNotFound)
}

func TestOpenRadio_MockSeesConfiguredNetworks(t *testing.T) {
	cfg := mockConfig()
	keeper := watchdog.NewKeeper(watchdog.NewSoft(cfg.Watchdog.Timeout), cfg.Watchdog.Margin, nil)

	radio, err := openRadio(cfg, true, keeper)
	require.NoError(t, err)

	ssids, err := radio.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "phone"}, ssids)
}

func TestMockDoer(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://ambidata.io/api/v2/channels/1/data", strings.NewReader(`{"d1":1}`))
	require.NoError(t, err)

	resp, err := mockDoer{}.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NoError(t, resp.Body.Close())
}

func TestOpenConsole_MissingSerial(t *testing.T) {
	cfg := mockConfig()
	cfg.Display.Serial = "/dev/envrelay-missing-tty"

	_, closeConsole, err := openConsole(cfg)
	require.Error(t, err)
	assert.Nil(t, closeConsole)
	assert.Contains(t, err.Error(), "/dev/envrelay-missing-tty")
}

func TestOpenConsole_Stdout(t *testing.T) {
	console, closeConsole, err := openConsole(mockConfig())
	require.NoError(t, err)
	assert.NotNil(t, console)
	closeConsole()
}
