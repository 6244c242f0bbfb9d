package app_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/notifyd/internal/app"
	"github.com/openclaw/notifyd/internal/config"
	"github.com/openclaw/notifyd/internal/journal"
	"github.com/openclaw/notifyd/internal/prefs"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSeed(cfg *config.Config) {
	off := false
	cfg.Ingest.Seed = &off
}

// run starts a's engine and its loop. The returned stop closes the App once; it is also
// registered as a cleanup.
func run(t *testing.T, a *app.App) (stop func()) {
	t.Helper()
	if err := a.Engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- a.Engine.Run(context.Background()) }()
	stopped := false
	stop = func() {
		if stopped {
			return
		}
		stopped = true
		if err := a.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}
	t.Cleanup(stop)
	if _, err := a.Engine.Connection(context.Background()); err != nil {
		t.Fatalf("Connection: %v", err)
	}
	return stop
}

func TestNew_HubModeServesAPI(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	noSeed(cfg)
	cfg.Ingest.Mode = "hub"
	cfg.Preferences.Backend = "file"
	cfg.Preferences.Path = filepath.Join(dir, "prefs")
	cfg.JournalPath = filepath.Join(dir, "journal.log")

	a, err := app.New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if a.Hub == nil {
		t.Fatal("hub mode must expose the hub")
	}
	stop := run(t, a)
	h := a.Handler(nil)

	if got := a.Hub.SubscriberCount(); got != 1 {
		t.Fatalf("hub subscribers = %d, want 1", got)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications",
		strings.NewReader(`{"id":"n1","severity":"info","category":"agent","title":"hello from hub"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("publish: status %d, body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/view", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hello from hub") {
		t.Fatalf("view: status %d, body %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/n1/read", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("read: status %d, body %s", rec.Code, rec.Body)
	}

	stop()
	records, err := journal.Verify(cfg.JournalPath)
	if err != nil {
		t.Fatalf("journal.Verify: %v", err)
	}
	if len(records) != 1 || records[0].Action != journal.ActionRead {
		t.Errorf("journal = %+v, want one read record", records)
	}
}

func TestNew_SeedsDemoList(t *testing.T) {
	a, err := app.New(context.Background(), config.Default(), quietLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if a.Hub != nil {
		t.Error("simulated mode must not create a hub")
	}
	run(t, a)

	v, err := a.Engine.View(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.Stats.Total != 12 {
		t.Errorf("total = %d, want 12", v.Stats.Total)
	}
}

func TestNew_SQLitePreferencesSurviveRestart(t *testing.T) {
	cfg := config.Default()
	noSeed(cfg)
	cfg.Preferences.Backend = "sqlite"
	cfg.Preferences.Path = filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	a, err := app.New(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	stop := run(t, a)
	if _, err := a.Engine.UpdatePreferences(ctx, func(p *prefs.Preferences) {
		p.MarkAllReadOnOpen = true
	}); err != nil {
		t.Fatal(err)
	}
	stop()

	b, err := app.New(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("app.New (restart): %v", err)
	}
	run(t, b)
	p, err := b.Engine.Preferences(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !p.MarkAllReadOnOpen {
		t.Error("preference lost across restart")
	}
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Preferences.Backend = "etcd"
	if _, err := app.New(context.Background(), cfg, quietLogger()); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestNew_GatedChannel(t *testing.T) {
	cfg := config.Default()
	noSeed(cfg)
	cfg.Ingest.Mode = "hub"
	cfg.Ingest.Gate = true

	a, err := app.New(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	run(t, a)
	// The gate implements Retrier even when the channel it wraps does not.
	if err := a.Engine.Retry(); err != nil {
		t.Errorf("Retry through gate: %v", err)
	}
}

func writePublicKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "jwt.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAuth(t *testing.T) {
	auth, err := app.LoadAuth(config.AuthConfig{}, quietLogger())
	if err != nil || auth != nil {
		t.Fatalf("empty config: auth=%v err=%v, want nil, nil", auth, err)
	}

	if _, err := app.LoadAuth(config.AuthConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pem")}, quietLogger()); err == nil {
		t.Error("expected an error for a missing key file")
	}

	auth, err = app.LoadAuth(config.AuthConfig{
		PublicKeyPath: writePublicKey(t),
		Issuer:        "notifyd",
	}, quietLogger())
	if err != nil {
		t.Fatalf("LoadAuth: %v", err)
	}
	if auth.PublicKey == nil || auth.Issuer != "notifyd" {
		t.Errorf("auth = %+v", auth)
	}
	if len(auth.SkipPaths) != 1 || auth.SkipPaths[0] != "/healthz" {
		t.Errorf("SkipPaths = %v", auth.SkipPaths)
	}
}
