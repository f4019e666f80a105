// Package postgres provides a PostgreSQL-backed [transcript.Sink].
//
// Every persisted transcript becomes one row in the transcripts table. Row
// ids are random UUIDs generated client-side so that the identifier can be
// returned without a round trip for RETURNING.
//
// Usage:
//
//	sink, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer sink.Close()
//	id, _ := sink.Persist(ctx, "at the park")
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/wakegate/internal/transcript"
)

// Compile-time interface assertion.
var _ transcript.Sink = (*Sink)(nil)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          UUID         PRIMARY KEY,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    text        TEXT         NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);
`

// Migrate creates the transcripts table if it does not exist. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Sink stores transcripts in PostgreSQL. It is safe for concurrent use.
type Sink struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to the database at dsn, verifies the connection and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres sink: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres sink: %w", err)
	}
	return &Sink{pool: pool, now: time.Now}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. It backs the sink
// readiness check.
func (s *Sink) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Persist inserts text as a new row and returns its UUID.
func (s *Sink) Persist(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	id := uuid.New()
	const q = `INSERT INTO transcripts (id, created_at, text) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, q, id.String(), s.now().UTC(), text); err != nil {
		return "", fmt.Errorf("%w: postgres insert: %w", transcript.ErrPersist, err)
	}
	return id.String(), nil
}

// Get returns the text stored under id.
func (s *Sink) Get(ctx context.Context, id string) (string, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("postgres sink: parse id %q: %w", id, err)
	}
	var text string
	const q = `SELECT text FROM transcripts WHERE id = $1`
	if err := s.pool.QueryRow(ctx, q, uid.String()).Scan(&text); err != nil {
		return "", fmt.Errorf("postgres sink: get %s: %w", id, err)
	}
	return text, nil
}
