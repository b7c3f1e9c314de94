// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command chatserver runs a chatline broadcast server. Usage:
//
//	chatserver [-config file.toml] [-metrics-addr host:port] [-idle-timeout d] [port]
//
// port is the first positional argument, defaulting to 8080 when omitted
// or non-numeric.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"code.hybscloud.com/chatline/server"

	"github.com/BurntSushi/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 8080

// fileConfig is the shape of an optional -config TOML file. Every field
// is optional; zero values leave the corresponding Config field at its
// own default.
type fileConfig struct {
	Addr            string `toml:"addr"`
	HistoryCapacity int    `toml:"history_capacity"`
	MaxQueuedBytes  int    `toml:"max_queued_bytes"`
	MaxFrameLength  int    `toml:"max_frame_length"`
	IdleTimeout     string `toml:"idle_timeout"`
}

func applyFileConfig(cfg *server.Config, fc fileConfig, logger *zap.Logger) {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.HistoryCapacity > 0 {
		cfg.HistoryCapacity = fc.HistoryCapacity
	}
	if fc.MaxQueuedBytes > 0 {
		cfg.MaxQueuedBytes = fc.MaxQueuedBytes
	}
	if fc.MaxFrameLength > 0 {
		cfg.MaxFrameLength = fc.MaxFrameLength
	}
	if fc.IdleTimeout != "" {
		d, err := time.ParseDuration(fc.IdleTimeout)
		if err != nil {
			logger.Warn("chatserver: ignoring malformed idle_timeout in config file",
				zap.String("value", fc.IdleTimeout), zap.Error(err))
			return
		}
		cfg.IdleTimeout = d
	}
}

func parsePort(arg string, logger *zap.Logger) int {
	if arg == "" {
		return defaultPort
	}
	port, err := strconv.Atoi(arg)
	if err != nil || port <= 0 || port > 65535 {
		logger.Warn("chatserver: invalid port argument, falling back to default",
			zap.String("arg", arg), zap.Int("default_port", defaultPort))
		return defaultPort
	}
	return port
}

func main() {
	var configPath, metricsAddr string
	var idleTimeout time.Duration
	flag.StringVar(&configPath, "config", "", "optional TOML file overriding server config")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics on (disabled if empty)")
	flag.DurationVar(&idleTimeout, "idle-timeout", 0, "close connections idle longer than this (0 disables)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatserver: building logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	port := parsePort(flag.Arg(0), logger)

	reg := prometheus.NewRegistry()
	cfg := server.Config{
		Addr:        net.JoinHostPort("", strconv.Itoa(port)),
		IdleTimeout: idleTimeout,
		Logger:      logger,
		Metrics:     server.NewMetrics(reg),
	}

	if configPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(configPath, &fc); err != nil {
			logger.Warn("chatserver: failed to load config file, continuing with flag/defaults",
				zap.String("path", configPath), zap.Error(err))
		} else {
			applyFileConfig(&cfg, fc, logger)
		}
	}

	srv, err := server.New(cfg)
	if err != nil {
		logger.Fatal("chatserver: building server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil {
			return fmt.Errorf("chatserver: serve: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		g.Go(func() error {
			logger.Info("chatserver: serving metrics", zap.String("addr", metricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("chatserver: metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("chatserver: exiting with error", zap.Error(err))
		os.Exit(1)
	}
}
