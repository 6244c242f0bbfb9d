package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresDDL is the key-value schema. value is TEXT rather than JSONB so
// the stored bytes round-trip verbatim, including documents that do not
// parse (which Load then treats as corrupt).
const postgresDDL = `
CREATE TABLE IF NOT EXISTS notification_preferences (
    key        TEXT        PRIMARY KEY,
    value      TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend is a Backend over a pgxpool connection pool, for
// dashboards that already run PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pool to connStr, pings the database and applies
// the schema.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("prefs: pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs: pool.Ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs: apply schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Get implements Backend.
func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := b.pool.QueryRow(ctx,
		`SELECT value FROM notification_preferences WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("prefs: postgres get %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: postgres get %q: %w", key, err)
	}
	return []byte(value), nil
}

// Put implements Backend.
func (b *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO notification_preferences (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("prefs: postgres put %q: %w", key, err)
	}
	return nil
}

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
