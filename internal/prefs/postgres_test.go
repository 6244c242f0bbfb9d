//go:build integration

// Run with:
//
//	go test -tags integration -v ./internal/prefs/...
//
// Requires Docker (for testcontainers-go) and a reachable Docker socket.
package prefs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openclaw/notifyd/internal/prefs"
)

// setupPostgres starts a PostgreSQL container and returns a backend
// connected to it.
func setupPostgres(t *testing.T) *prefs.PostgresBackend {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcpostgres.WithDatabase("notifyd_test"),
		tcpostgres.WithUsername("notifyd"),
		tcpostgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	b, err := prefs.NewPostgresBackend(ctx, connStr)
	if err != nil {
		t.Fatalf("NewPostgresBackend: %v", err)
	}
	return b
}

func TestPostgresBackend(t *testing.T) {
	b := setupPostgres(t)
	t.Cleanup(func() { _ = b.Close() })
	testBackend(t, b)
}

func TestPostgresBackend_StoreRoundTrip(t *testing.T) {
	b := setupPostgres(t)

	s, writes := newStore(t, b)
	want := customPrefs()
	s.Save(want)
	if err := waitWrite(t, writes); err != nil {
		t.Fatalf("background write: %v", err)
	}
	if got := s.Load(context.Background()); !got.Equal(want) {
		t.Errorf("Load = %+v, want %+v", got.Flat(), want.Flat())
	}
}

func TestPostgresBackend_CorruptDocument(t *testing.T) {
	b := setupPostgres(t)
	if err := b.Put(context.Background(), prefs.DefaultKey, []byte("garbage")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s, _ := newStore(t, b)
	if got := s.Load(context.Background()); !got.Equal(prefs.Defaults()) {
		t.Errorf("Load = %+v, want defaults", got.Flat())
	}
	if _, err := b.Get(context.Background(), "other"); !errors.Is(err, prefs.ErrNotFound) {
		t.Errorf("missing key: err = %v, want ErrNotFound", err)
	}
}
