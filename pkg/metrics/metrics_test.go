package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/envrelay/pkg/bme680"
)

func TestObserve(t *testing.T) {
	m := New("0x77")
	score := 35.0
	m.Observe(bme680.Reading{
		Temperature: 21.5, Humidity: 45, Pressure: 1012,
		GasResistance: 52000, HasGas: true,
	}, &score)

	assert.Equal(t, 21.5, testutil.ToFloat64(m.temperature.WithLabelValues("0x77")))
	assert.Equal(t, 45.0, testutil.ToFloat64(m.humidity.WithLabelValues("0x77")))
	assert.Equal(t, 1012.0, testutil.ToFloat64(m.pressure.WithLabelValues("0x77")))
	assert.Equal(t, 52000.0, testutil.ToFloat64(m.gas.WithLabelValues("0x77")))
	assert.Equal(t, 35.0, testutil.ToFloat64(m.iaq.WithLabelValues("0x77")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("0x77", "ok")))
}

func TestMissedThenRecovered(t *testing.T) {
	m := New("0x76")
	m.Missed(1)
	m.Missed(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failures.WithLabelValues("0x76")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("0x76", "failed")))

	m.Observe(bme680.Reading{}, nil)
	assert.Zero(t, testutil.ToFloat64(m.failures.WithLabelValues("0x76")))
}

func TestCounters(t *testing.T) {
	m := New("0x77")
	m.Reinit(true)
	m.Link(false)
	m.Link(true)
	m.Uplink(false, 3)
	m.Uplink(true, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reinits.WithLabelValues("0x77", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.links.WithLabelValues("0x77", "failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.attempts.WithLabelValues("0x77")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("0x77", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("0x77", "ok")))
}

func TestHandler(t *testing.T) {
	m := New("0x77")
	m.Observe(bme680.Reading{Temperature: 19.25}, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `envrelay_air_temperature{sensor="0x77"} 19.25`), body)
}
