// notify-tui is a terminal notification centre. It runs the engine in
// process, with the same configuration file as notifyd, and renders the
// derived list with bubbletea. Logs go to a file because the terminal is
// owned by the UI.
//
// With --http-addr the REST API and change stream are served alongside the
// UI, so that events can be published into a hub-mode engine from outside.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/openclaw/notifyd/internal/app"
	"github.com/openclaw/notifyd/internal/config"
	"github.com/openclaw/notifyd/internal/logging"
	"github.com/openclaw/notifyd/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notify-tui: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, logFile, logLevel, httpAddr string

	flags := pflag.NewFlagSet("notify-tui", pflag.ContinueOnError)
	flags.StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file (defaults are used when empty)")
	flags.StringVar(&logFile, "log-file", filepath.Join(os.TempDir(), "notify-tui.log"), "file receiving log records")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug | info | warn | error (overrides log_level)")
	flags.StringVar(&httpAddr, "http-addr", "", "also serve the REST API on this address")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flags.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	logger := logging.New(f, logging.FormatText, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown error", slog.Any("error", err))
		}
	}()
	if err := a.Engine.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := a.Engine.Run(ctx); err != nil {
			logger.Error("engine stopped", slog.Any("error", err))
		}
	}()

	if httpAddr != "" {
		auth, err := app.LoadAuth(cfg.Auth, logger)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: httpAddr, Handler: a.Handler(auth), ReadTimeout: 15 * time.Second}
		go func() {
			logger.Info("HTTP server listening", slog.String("addr", httpAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	model := tui.New(a.Engine, tui.WithChanges(a.Broadcaster.Subscribe(ctx)))
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
