package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	selectionSchema = `CREATE TABLE IF NOT EXISTS navigation_selections (
	client_id  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (client_id, key)
)`
	selectionIndex  = `CREATE INDEX IF NOT EXISTS navigation_selections_updated_at_idx ON navigation_selections (updated_at)`
	selectSelection = `SELECT value FROM navigation_selections WHERE client_id = $1 AND key = $2`
	upsertSelection = `INSERT INTO navigation_selections (client_id, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (client_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	pruneSelections = `DELETE FROM navigation_selections WHERE updated_at < $1`
)

// PGExecutor is the subset of pgxpool.Pool used by PGStore.
type PGExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore keeps selections in Postgres so they survive Redis flushes.
type PGStore struct {
	db PGExecutor
}

// NewPGStore wraps db.
func NewPGStore(db PGExecutor) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the selections table and its age index when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{selectionSchema, selectionIndex} {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("navigation: ensure schema: %w", err)
		}
	}
	return nil
}

// Prune deletes selections not written since olderThan and reports how many went.
func (s *PGStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, pruneSelections, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("navigation: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, client, key string) (string, error) {
	var value string
	if err := s.db.QueryRow(ctx, selectSelection, client, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("navigation: pg get %s: %w", key, err)
	}
	return value, nil
}

// Set implements Store.
func (s *PGStore) Set(ctx context.Context, client, key, value string) error {
	if _, err := s.db.Exec(ctx, upsertSelection, client, key, value); err != nil {
		return fmt.Errorf("navigation: pg set %s: %w", key, err)
	}
	return nil
}
