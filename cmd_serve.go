package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/soocke/framering-go/debug"
	"github.com/soocke/framering-go/domain/recorder"
	"github.com/soocke/framering-go/platform/httpapi"
	"github.com/soocke/framering-go/platform/metrics"
)

const shutdownTimeout = 10 * time.Second

// exporter returns the metrics collectors when an HTTP address is set.
func (c *cli) exporter() *metrics.Metrics {
	if c.cfg.MetricsAddr == "" {
		return nil
	}
	return metrics.New()
}

// newRecorder builds the recorder for the configured target. Options are
// read from the config on every start.
func (c *cli) newRecorder(met *metrics.Metrics) *recorder.Recorder {
	backend, target := c.target()
	var exp recorder.Exporter
	if met != nil {
		exp = met
	}
	return recorder.New(c.logger, backend, target, c.cfg.CaptureOptions, exp)
}

// serve starts the HTTP endpoint when configured and returns a function that
// shuts it down.
func (c *cli) serve(rec *recorder.Recorder, met *metrics.Metrics) func() {
	if c.cfg.MetricsAddr == "" {
		return func() {}
	}
	h := httpapi.NewHandler(rec, c.logger)
	srv := &http.Server{Addr: c.cfg.MetricsAddr, Handler: httpapi.NewRouter(h, c.logger, met)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	c.logger.Info("server starting", slog.String("addr", c.cfg.MetricsAddr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			c.logger.Error("shutdown error", slog.String("error", err.Error()))
		}
	}
}

// startDebug runs the periodic memory and goroutine loggers until ctx ends.
func (c *cli) startDebug(ctx context.Context, rec *recorder.Recorder) {
	if !c.cfg.Debug {
		return
	}
	retained := func() int64 {
		st, ok := rec.Stats()
		if !ok {
			return 0
		}
		return st.Ring.Bytes + st.Ring.DetachedBytes
	}
	debug.StartMemLogger(ctx, 10*time.Second, c.logger, retained)
	debug.StartGoroutineLogger(ctx, 30*time.Second, c.logger)
}
