package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/envrelay/pkg/bme680"
	"github.com/itohio/envrelay/pkg/config"
	"github.com/itohio/envrelay/pkg/display"
	"github.com/itohio/envrelay/pkg/health"
	"github.com/itohio/envrelay/pkg/link"
	"github.com/itohio/envrelay/pkg/metrics"
	"github.com/itohio/envrelay/pkg/scheduler"
	"github.com/itohio/envrelay/pkg/uplink"
	"github.com/itohio/envrelay/pkg/watchdog"
)

func main() {
	var (
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated sensor, radio, uplink and watchdog")
		logLevelFlag = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		listenFlag   = flag.String("listen-address", "", "Metrics listen address override, e.g. :9100")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}
	if *listenFlag != "" {
		cfg.Metrics.Listen = *listenFlag
	}
	mock := *mockFlag || cfg.Mock.Enabled

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, mock)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, mock bool) int {
	console, closeConsole, err := openConsole(cfg)
	if err != nil {
		log.Errorf("%v", err)
		return 1
	}
	defer closeConsole()

	_ = console.Banner("BME680 environment sensor + Ambient uplink",
		fmt.Sprintf("send interval: %v, cadence: %v", cfg.Schedule.SendInterval, cfg.Schedule.Cadence),
		"gas resistance may take a few minutes to settle",
	)

	hw := &hardware{cfg: cfg, mock: mock}
	sensor, err := hw.open()
	if errors.Is(err, bme680.ErrNotFound) {
		log.Errorf("%v", err)
		return 0
	}
	if err != nil {
		log.Errorf("Failed to initialise sensor: %v", err)
		return 1
	}
	defer hw.close()

	keeper := watchdog.NewKeeper(openLease(cfg, mock), cfg.Watchdog.Margin, nil)
	defer keeper.Close()

	deps := scheduler.Deps{
		Monitor: health.NewMonitor(sensor, hw.reopen, keeper, cfg.HealthConfig()),
		Keeper:  keeper,
		Backoff: cfg.Backoff(),
		Display: console,
	}

	if len(cfg.Networks) > 0 {
		radio, err := openRadio(cfg, mock, keeper)
		if err != nil {
			log.Warnf("Wi-Fi unavailable, measuring locally: %v", err)
		} else {
			sup := link.NewSupervisor(radio, cfg.LinkNetworks(), keeper, cfg.LinkConfig())
			defer func() {
				if err := sup.Disconnect(); err != nil {
					log.Debugf("link disconnect: %v", err)
				}
			}()
			deps.Link = sup
			var client uplink.Doer = &http.Client{}
			if mock {
				client = mockDoer{}
			}
			deps.Uplink = uplink.New(cfg.UplinkConfig(), client, keeper)
		}
	} else {
		log.Info("No networks configured, measuring locally")
	}

	m := metrics.New(fmt.Sprintf("0x%02x", sensor.Address()))
	deps.Metrics = m
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	s := scheduler.New(cfg.ScheduleConfig(), deps)
	log.WithField("boot", s.BootID()).Info("starting measurement loop")

	if err := s.Run(ctx); err != nil {
		log.Errorf("%v", err)
		return 1
	}
	log.Info("measurement stopped")
	return 0
}

func openConsole(cfg *config.Config) (*display.Console, func(), error) {
	if cfg.Display.Serial == "" {
		return display.NewConsole(os.Stdout), func() {}, nil
	}
	s, err := display.OpenSerial(cfg.Display.Serial, cfg.Display.BaudRate)
	if err != nil {
		if ports, perr := display.Ports(); perr == nil && len(ports) > 0 {
			names := make([]string, 0, len(ports))
			for _, p := range ports {
				names = append(names, p.Name)
			}
			return nil, nil, errors.Wrapf(err, "available ports: %s", strings.Join(names, ", "))
		}
		return nil, nil, err
	}
	return s.Console, func() { closeQuietly(s) }, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Debugf("close: %v", err)
	}
}
