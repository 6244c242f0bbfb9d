// Package app assembles a running notification engine and its collaborators
// from a config.Config. Both binaries build on it: notifyd serves the result
// over HTTP, notify-tui renders it in the terminal.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/openclaw/notifyd/internal/config"
	"github.com/openclaw/notifyd/internal/engine"
	"github.com/openclaw/notifyd/internal/ingest"
	"github.com/openclaw/notifyd/internal/journal"
	"github.com/openclaw/notifyd/internal/notify"
	"github.com/openclaw/notifyd/internal/prefs"
	"github.com/openclaw/notifyd/internal/server/rest"
	"github.com/openclaw/notifyd/internal/server/websocket"
)

// wsWriteTimeout bounds a single change-stream frame write.
const wsWriteTimeout = 10 * time.Second

// App owns the engine and everything it was built from. Close releases all
// of it.
type App struct {
	Engine      *engine.Engine
	Broadcaster *websocket.Broadcaster
	// Hub is the ingestion hub in hub mode, nil otherwise.
	Hub *ingest.Hub

	prefs   *prefs.Store
	journal *journal.Writer
	logger  *slog.Logger
}

// Option adjusts the engine options before the engine is created.
type Option func(*engine.Options)

// WithNow overrides the engine clock.
func WithNow(now func() time.Time) Option {
	return func(o *engine.Options) { o.Now = now }
}

// New opens the preference backend, the journal and the ingestion channel
// described by cfg and returns an App whose engine is not yet started.
// Callers call Engine.Start before serving traffic, then Engine.Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	backend, err := openBackend(ctx, cfg.Preferences)
	if err != nil {
		return nil, err
	}
	var storeOpts []prefs.Option
	if cfg.Preferences.Key != "" {
		storeOpts = append(storeOpts, prefs.WithKey(cfg.Preferences.Key))
	}
	a := &App{
		Broadcaster: websocket.NewBroadcaster(logger, 0),
		prefs:       prefs.NewStore(backend, logger, storeOpts...),
		logger:      logger,
	}

	o := engine.Options{
		Channel:      a.newChannel(cfg.Ingest),
		Preferences:  a.prefs,
		Logger:       logger,
		GroupWindow:  cfg.Grouping.Window,
		GroupMinSize: cfg.Grouping.MinSize,
		Publisher:    a.Broadcaster,
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.journal = journal.NewWriter(j, logger)
		o.Journal = a.journal
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Ingest.SeedEnabled() {
		now := time.Now
		if o.Now != nil {
			now = o.Now
		}
		o.Seed = ingest.SeedEvents(now())
	}

	eng, err := engine.New(o)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = eng
	return a, nil
}

func openBackend(ctx context.Context, p config.PreferencesConfig) (prefs.Backend, error) {
	switch p.Backend {
	case "file":
		return prefs.NewFileBackend(p.Path)
	case "sqlite":
		return prefs.NewSQLiteBackend(p.Path)
	case "postgres":
		return prefs.NewPostgresBackend(ctx, p.DSN)
	case "memory", "":
		return prefs.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("app: unknown preferences backend %q", p.Backend)
	}
}

func (a *App) newChannel(in config.IngestConfig) ingest.Channel {
	var ch ingest.Channel
	if in.Mode == "hub" {
		a.Hub = ingest.NewHub(a.logger)
		ch = a.Hub
	} else {
		ch = ingest.NewSimulated(ingest.SimulatedConfig{
			EventInterval:       in.EventInterval,
			HealthInterval:      in.HealthInterval,
			HiccupProbability:   in.HiccupProbability,
			RecoveryProbability: in.RecoveryProbability,
			MaxFailedChecks:     in.MaxFailedChecks,
		}, a.logger)
	}
	if in.Gate {
		ch = ingest.NewGate(ch, in.BacklogSize, a.logger)
	}
	return ch
}

// Handler returns the HTTP surface: the REST API and the change stream.
// auth may be nil.
func (a *App) Handler(auth *rest.JWTConfig) http.Handler {
	stream := websocket.NewHandler(a.Broadcaster, a.logger, wsWriteTimeout,
		websocket.WithGreeting(a.greeting))

	opts := []rest.ServerOption{rest.WithStream(stream), rest.WithLogger(a.logger)}
	if a.Hub != nil {
		opts = append(opts, rest.WithPublisher(a.Hub))
	}
	return rest.NewRouter(rest.NewServer(a.Engine, opts...), auth)
}

// greeting tells a new stream client the current connection status.
func (a *App) greeting(ctx context.Context) (websocket.Message, error) {
	st, err := a.Engine.Connection(ctx)
	if err != nil {
		return websocket.Message{}, err
	}
	return websocket.Message{
		Type: string(notify.ChangeConnection),
		Data: websocket.ChangeData{
			Status: string(st),
			At:     time.Now().UTC().Format(time.RFC3339Nano),
		},
	}, nil
}

// Close stops the engine and releases every resource. It is safe to call
// on a partially built App.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Close()
	}
	a.Broadcaster.Close()
	if a.Hub != nil {
		a.Hub.Close()
	}
	// Store.Close flushes the pending write and closes the backend.
	a.prefs.Close()

	var errs []error
	// Writer.Close flushes queued mutations before closing the file.
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close journal: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadAuth builds the JWT middleware configuration, or returns nil when no
// public key is configured.
func LoadAuth(cfg config.AuthConfig, logger *slog.Logger) (*rest.JWTConfig, error) {
	if cfg.PublicKeyPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("app: read JWT public key: %w", err)
	}
	key, err := rest.ParseRSAPublicKey(pem)
	if err != nil {
		return nil, err
	}
	return &rest.JWTConfig{
		PublicKey: key,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		SkipPaths: []string{"/healthz"},
		Logger:    logger,
	}, nil
}
