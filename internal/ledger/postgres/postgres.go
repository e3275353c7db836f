package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// register pgx stdlib driver
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/thinkgate/thinkgate/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger store using the provided DSN and
// connection pool settings. Zero values keep database/sql defaults.
func New(dsn string, maxOpen, maxIdle int, connLifetime time.Duration) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if connLifetime > 0 {
		db.SetConnMaxLifetime(connLifetime)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS usage_entries (
	id BIGSERIAL PRIMARY KEY,
	stream_id TEXT NOT NULL,
	model TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	prompt_tokens BIGINT NOT NULL,
	completion_tokens BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_usage_entries_created ON usage_entries(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_usage_entries_model ON usage_entries(model, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new usage entry.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO usage_entries(stream_id, model, endpoint, prompt_tokens, completion_tokens, created_at)
VALUES($1, $2, $3, $4, $5, $6)`,
		entry.StreamID,
		entry.Model,
		entry.Endpoint,
		entry.PromptTokens,
		entry.CompletionTokens,
		created,
	)
	return err
}

// Summary returns aggregated usage across all recorded exchanges.
func (s *Store) Summary(ctx context.Context) (ledger.Summary, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(SUM(prompt_tokens), 0),
	COALESCE(SUM(completion_tokens), 0)
FROM usage_entries`)

	var requests, prompt, completion sql.NullInt64
	if err := row.Scan(&requests, &prompt, &completion); err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summary{
		Requests:         requests.Int64,
		PromptTokens:     prompt.Int64,
		CompletionTokens: completion.Int64,
		TotalTokens:      prompt.Int64 + completion.Int64,
	}, nil
}

// ListRecent returns the latest entries.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, stream_id, model, endpoint, prompt_tokens, completion_tokens, created_at
FROM usage_entries
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.StreamID, &e.Model, &e.Endpoint, &e.PromptTokens, &e.CompletionTokens, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
