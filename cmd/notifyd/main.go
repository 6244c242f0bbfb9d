// Command notifyd is the notification engine server. It loads an optional
// YAML configuration file, builds the engine over the configured ingestion
// channel and preference backend, serves the REST API and change stream
// over HTTP, and shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/openclaw/notifyd/internal/app"
	"github.com/openclaw/notifyd/internal/config"
	"github.com/openclaw/notifyd/internal/logging"
)

func main() {
	flags := pflag.NewFlagSet("notifyd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration file (defaults are used when empty)")
	httpAddr := flags.String("http-addr", "", "HTTP listen address (overrides http_addr)")
	logLevel := flags.String("log-level", "", "log level: debug | info | warn | error (overrides log_level)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "notifyd: %v\n", err)
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "notifyd: %v\n", err)
			os.Exit(1)
		}
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.New(os.Stderr, logging.FormatJSON, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("notifyd starting",
		slog.String("config_path", *configPath),
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("ingest_mode", cfg.Ingest.Mode),
		slog.String("preferences_backend", cfg.Preferences.Backend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Engine ────────────────────────────────────────────────────────────────
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown error", slog.Any("error", err))
		}
	}()

	// Subscribed before the listener opens, so published events are never
	// dropped for want of a subscriber.
	if err := a.Engine.Start(ctx); err != nil {
		logger.Error("failed to start engine", slog.Any("error", err))
		os.Exit(1)
	}
	engineErrCh := make(chan error, 1)
	go func() {
		engineErrCh <- a.Engine.Run(ctx)
	}()

	// ── REST API server ───────────────────────────────────────────────────────
	auth, err := app.LoadAuth(cfg.Auth, logger)
	if err != nil {
		logger.Error("failed to load JWT public key", slog.Any("error", err))
		os.Exit(1)
	}
	if auth != nil {
		logger.Info("JWT validation enabled")
	} else {
		logger.Warn("auth.public_key_path not configured; API authentication disabled (dev mode)")
	}

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     a.Handler(auth),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived change streams. Stream
		// frames carry their own write deadline.
		IdleTimeout: 60 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(httpErrCh)
	}()

	// ── Wait for shutdown signal or fatal error ───────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	case err := <-engineErrCh:
		logger.Error("engine stopped unexpectedly", slog.Any("error", err))
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}
	cancel()

	logger.Info("notifyd exited cleanly")
}
