package main

import (
	"net/http"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lockkv/pkg/config"
	"lockkv/pkg/engine"
	"lockkv/pkg/logging"
	"lockkv/pkg/metrics"
	"lockkv/pkg/protos"
)

var opts struct {
	Host        string `value-name:"host" short:"h" long:"host" description:"lockkv server host (overrides LOCKKV_HOST)"`
	Port        string `value-name:"port" short:"p" long:"port" description:"lockkv server port (overrides LOCKKV_PORT)"`
	MetricsAddr string `value-name:"addr" long:"metrics-addr" description:"Prometheus metrics listen address (overrides LOCKKV_METRICS_ADDR)"`
	Debug       bool   `long:"debug" description:"enable development-mode logging"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.Debug {
		cfg.Debug = true
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	m := metrics.New()
	e := engine.New(cfg.Engine, logger, m)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
		logger.Warnw("metrics endpoint failed", "err", http.ListenAndServe(cfg.MetricsAddr, mux))
	}()

	server := protos.NewServer(cfg.Host, cfg.Port, e, logger)
	defer server.Close()

	logger.Infow("lockkv server listening", "host", cfg.Host, "port", cfg.Port)
	if err := server.Run(); err != nil {
		logger.Fatalw("server exited", "err", err)
	}
}
