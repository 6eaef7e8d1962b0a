/*
 * Copyright 2022 Holoinsight Project Authors. Licensed under Apache-2.0.
 */

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/appconfig"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/logger"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/metrics"
	"github.com/traas-stack/holoinsight-eventprocessor/pkg/util"
	"go.uber.org/zap"
)

const shutdownHTTPTimeout = 3 * time.Second

func bootstrap() error {
	begin := time.Now()

	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}

	if err := logger.SetupZapLogger(logger.LogConfig{
		Dir:        cfg.Log.Dir,
		Console:    cfg.Log.Console,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return err
	}
	defer logger.Close()

	if cfg.Log.Debug || os.Getenv("DEBUG") == "true" {
		logger.DebugEnabled = true
	}
	logger.Infoz("[bootstrap] config", zap.Any("config", cfg.Redacted()), zap.String("version", appconfig.Version()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	p, err := buildPipeline(cfg, m)
	if err != nil {
		logger.Errorz("[bootstrap] build pipeline error", zap.Error(err))
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	logger.Infoz("[bootstrap] pipeline started", zap.Duration("cost", time.Since(begin)))

	var g run.Group
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	if cfg.Input.Stdin {
		addStdinSource(&g, p, cfg.Input.ExitOnEOF)
	}
	if cfg.Metrics.Addr != "" {
		if err := addHTTPServer(&g, cfg, registry, p); err != nil {
			p.Stop(cfg.StopTimeout.Duration())
			return err
		}
	}

	err = g.Run()
	logger.Infoz("[bootstrap] receive stop", zap.NamedError("reason", err))

	stopBegin := time.Now()
	clean := p.Stop(cfg.StopTimeout.Duration())
	logger.Infoz("[bootstrap] stop done",
		zap.Bool("clean", clean),
		zap.Int("dispatchPending", p.sink.Pending()),
		zap.Duration("cost", time.Since(stopBegin)))
	if !clean {
		return errors.New("pipeline did not stop cleanly")
	}
	return nil
}

func addStdinSource(g *run.Group, p *eventPipeline, exitOnEOF bool) {
	ctx, cancel := context.WithCancel(context.Background())
	g.Add(func() error {
		done := make(chan error, 1)
		// a blocked read on stdin cannot be interrupted, the reader is left behind on exit
		util.GoWithRecover(func() {
			n, err := readEvents(ctx, os.Stdin, p.Submit)
			logger.Infoz("[source] stdin done", zap.Int("events", n), zap.Error(err))
			done <- err
		})
		select {
		case err := <-done:
			if err != nil || exitOnEOF {
				return err
			}
			<-ctx.Done()
			return nil
		case <-ctx.Done():
			return nil
		}
	}, func(error) {
		cancel()
	})
}

func addHTTPServer(g *run.Group, cfg *appconfig.Config, registry *prometheus.Registry, p *eventPipeline) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/api/pipeline/flush", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.Flush()
		w.Write([]byte("OK"))
	})
	logger.RegisterHTTPHandler(mux)
	appconfig.RegisterHTTPHandler(mux, cfg)

	listener, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.Metrics.Addr)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Infoz("[bootstrap] http server listen", zap.String("addr", listener.Addr().String()))

	g.Add(func() error {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownHTTPTimeout)
		defer cancel()
		server.Shutdown(ctx)
	})
	return nil
}
