// Package metrics exposes readings and supervisor counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/bme680"
)

const namespace = "envrelay"

// Metrics holds the collectors of one sensor. Each instance has its own
// registry.
type Metrics struct {
	reg    *prometheus.Registry
	sensor string

	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	pressure    *prometheus.GaugeVec
	gas         *prometheus.GaugeVec
	iaq         *prometheus.GaugeVec
	failures    *prometheus.GaugeVec

	cycles   *prometheus.CounterVec
	reinits  *prometheus.CounterVec
	links    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	sends    *prometheus.CounterVec
}

func newGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		[]string{"sensor"},
	)
}

func newCounter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		append([]string{"sensor"}, labels...),
	)
}

// New registers the collectors for sensor, usually its bus address.
func New(sensor string) *Metrics {
	m := &Metrics{
		reg:    prometheus.NewRegistry(),
		sensor: sensor,

		temperature: newGauge("air_temperature", "Air Temperature (units: degrees Celsius)"),
		humidity:    newGauge("air_humidity", "Humidity (units: % of relative Humidity)"),
		pressure:    newGauge("air_atm_pressure", "Atmospheric Pressure (units: hPa)"),
		gas:         newGauge("gas_resistance", "Gas sensor resistance (units: Ohm)"),
		iaq:         newGauge("air_iaq", "Estimated indoor air quality score, 0 clean to 500 polluted"),
		failures:    newGauge("bus_consecutive_failures", "Consecutive failed measurement cycles"),

		cycles:   newCounter("cycles_total", "Measurement cycles by outcome", "result"),
		reinits:  newCounter("sensor_reinits_total", "Sensor reinitialisations by outcome", "result"),
		links:    newCounter("link_connects_total", "Link connect attempts by outcome", "result"),
		attempts: newCounter("uplink_attempts_total", "HTTP attempts made by the uplink"),
		sends:    newCounter("uplink_sends_total", "Uplink sends by outcome", "result"),
	}

	m.reg.MustRegister(
		m.temperature, m.humidity, m.pressure, m.gas, m.iaq, m.failures,
		m.cycles, m.reinits, m.links, m.attempts, m.sends,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// Observe records a successful reading. iaq may be nil.
func (m *Metrics) Observe(r bme680.Reading, iaq *float64) {
	m.cycles.WithLabelValues(m.sensor, outcome(true)).Inc()
	m.failures.WithLabelValues(m.sensor).Set(0)
	m.temperature.WithLabelValues(m.sensor).Set(r.Temperature)
	m.humidity.WithLabelValues(m.sensor).Set(r.Humidity)
	m.pressure.WithLabelValues(m.sensor).Set(r.Pressure)
	if r.HasGas {
		m.gas.WithLabelValues(m.sensor).Set(r.GasResistance)
	}
	if iaq != nil {
		m.iaq.WithLabelValues(m.sensor).Set(*iaq)
	}
}

// Missed records a cycle with no reading.
func (m *Metrics) Missed(failures int) {
	m.cycles.WithLabelValues(m.sensor, outcome(false)).Inc()
	m.failures.WithLabelValues(m.sensor).Set(float64(failures))
}

// Reinit records a reinitialisation.
func (m *Metrics) Reinit(ok bool) {
	m.reinits.WithLabelValues(m.sensor, outcome(ok)).Inc()
}

// Link records a connect attempt.
func (m *Metrics) Link(ok bool) {
	m.links.WithLabelValues(m.sensor, outcome(ok)).Inc()
}

// Uplink records one Send call that made attempts HTTP requests.
func (m *Metrics) Uplink(ok bool, attempts int) {
	m.attempts.WithLabelValues(m.sensor).Add(float64(attempts))
	m.sends.WithLabelValues(m.sensor, outcome(ok)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		// Opt into OpenMetrics to support exemplars.
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
