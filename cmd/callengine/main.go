// Command callengine boots the call-session engine: configuration,
// structured logging, the account store, the alert/telemetry pipeline,
// and the admin/health HTTP surface. Grounded on a
// cmd/flowpbx/main.go-style bootstrap shape (config load, background resource
// wiring, signal-driven graceful shutdown), narrowed to the engine's own
// dependencies now that SIP signalling and the media server are external
// collaborators wired in by whatever process embeds this one.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/callengine/internal/accountstore"
	"github.com/flowpbx/callengine/internal/alerts"
	"github.com/flowpbx/callengine/internal/api"
	"github.com/flowpbx/callengine/internal/api/middleware"
	"github.com/flowpbx/callengine/internal/callsession"
	"github.com/flowpbx/callengine/internal/config"
	"github.com/flowpbx/callengine/internal/engine"
	"github.com/flowpbx/callengine/internal/requestor"
	"github.com/flowpbx/callengine/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting callengine",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	store, err := accountstore.Open(filepath.Join(cfg.DataDir, "accounts.db"))
	if err != nil {
		slog.Error("failed to open account store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	startTime := time.Now()
	registry := callsession.NewRegistry()
	collector := telemetry.NewCollector(registry, startTime)
	if err := prometheus.Register(collector); err != nil {
		slog.Error("failed to register telemetry collector", "error", err)
		os.Exit(1)
	}

	alertSink := telemetry.MultiSink{
		alerts.NewLogSink(logger),
		telemetry.AlertSink{Counter: collector.Alerts},
	}
	alertEmitter := alerts.NewEmitter(alertSink)
	defer alertEmitter.Close()

	pool := requestor.NewPool(cfg.HTTPPoolSize, cfg.HTTPPipelining, cfg.HTTPTimeout, 10*time.Minute)
	defer pool.Close()

	wsConfig := requestor.WSConfig{
		PingInterval:       cfg.WSPingInterval,
		HandshakeTimeout:   cfg.WSHandshakeTimeout,
		ResponseTimeout:    cfg.ResponseTimeout,
		MaxPayloadBytes:    cfg.WSMaxPayloadBytes,
		MaxReconnects:      cfg.MaxReconnects,
		QueueHighWaterMark: cfg.WSQueueHighWaterMark,
		UserAgent:          cfg.HTTPUserAgent,
		Alerts:             alertEmitter,
	}

	eng := &engine.Engine{
		Accounts:    store,
		Pool:        pool,
		WSConfig:    wsConfig,
		Alerts:      alertEmitter,
		Registry:    registry,
		NewEndpoint: engine.StubEndpointFactory,
		Logger:      logger,
		UserAgent:   cfg.HTTPUserAgent,
	}
	slog.Info("engine ready; awaiting accepted calls from the signalling layer",
		"user_agent", eng.UserAgent,
	)

	handler := api.NewRouter(middleware.ParseCORSOrigins(cfg.CORSOrigins), registry, startTime)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}
}
