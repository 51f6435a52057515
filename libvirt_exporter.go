// Copyright 2017 Kumina, https://kumina.nl/
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Project forked from https://github.com/kumina/libvirt_exporter
// And then forked from https://github.com/rumanzo/libvirt_exporter_improved
// And then forked from https://github.com/AlexZzz/libvirt-exporter

package main

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/collector"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/hypervisor"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/registry"
	"github.com/nanoandrew4/openstack_libvirt_exporter/internal/scheduler"
)

const libvirtTimeout = 2 * time.Second

type config struct {
	port           int
	scrapeInterval time.Duration
	uri            string
	metricsPath    string
	logLevel       string
}

func parseFlags(args []string) (config, error) {
	var (
		app            = kingpin.New("openstack_libvirt_exporter", "Prometheus metrics exporter for OpenStack libvirt domains")
		port           = app.Flag("port_open", "Port to expose metrics on.").Envar("LIBVIRT_EXPORTER_PORT").Default("9177").Int()
		scrapeInterval = app.Flag("scrape_interval", "Seconds between the start of two collection cycles.").Envar("LIBVIRT_EXPORTER_SCRAPE_INTERVAL").Default("5").Int()
		uri            = app.Flag("uniform_resource_identifier", "Libvirt URI or unix socket path to collect from.").Envar("LIBVIRT_EXPORTER_URI").Default("qemu:///system").String()
		metricsPath    = app.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
		logLevel       = app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").Enum("debug", "info", "warn", "error")
	)
	if _, err := app.Parse(args); err != nil {
		return config{}, err
	}
	if *scrapeInterval <= 0 {
		return config{}, errors.Errorf("scrape_interval must be positive, got %d", *scrapeInterval)
	}
	return config{
		port:           *port,
		scrapeInterval: time.Duration(*scrapeInterval) * time.Second,
		uri:            *uri,
		metricsPath:    *metricsPath,
		logLevel:       *logLevel,
	}, nil
}

func newLogger(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	var allow level.Option
	switch lvl {
	case "debug":
		allow = level.AllowDebug()
	case "warn":
		allow = level.AllowWarn()
	case "error":
		allow = level.AllowError()
	default:
		allow = level.AllowInfo()
	}
	logger = level.NewFilter(logger, allow)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func newHandler(gatherer prometheus.Gatherer, metricsPath string, logger log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: stdlog.New(log.NewStdlibAdapter(level.Error(logger)), "", 0),
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`
			<html>
			<head><title>OpenStack Libvirt Exporter</title></head>
			<body>
			<h1>OpenStack Libvirt Exporter</h1>
			<p><a href='` + metricsPath + `'>Metrics</a></p>
			</body>
			</html>`))
	})
	return mux
}

func run(ctx context.Context, cfg config, logger log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics := registry.New()
	reg.MustRegister(metrics)

	sched := scheduler.New(
		hypervisor.NewLibvirt(libvirtTimeout),
		cfg.uri,
		cfg.scrapeInterval,
		collector.New(metrics, reg, logger),
		reg,
		logger,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.port),
		Handler:           newHandler(reg, cfg.metricsPath, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = level.Info(logger).Log("msg", "Listening", "address", server.Addr, "path", cfg.metricsPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		_ = level.Info(logger).Log("msg", "Starting collection", "uri", cfg.uri, "interval", cfg.scrapeInterval)
		return sched.Run(gctx)
	})
	return g.Wait()
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, cfg.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		_ = level.Error(logger).Log("msg", "Exporter stopped", "err", err)
		os.Exit(1)
	}
}
