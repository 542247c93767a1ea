package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/rpay/rpay-insights/internal/navigation"
	"github.com/rpay/rpay-insights/internal/platform/db"
)

// OpenSelectionStore builds the navigation store named by SELECTION_BACKEND. The
// returned func releases whatever the store opened. Without a Redis client the redis
// backend degrades to process memory.
func OpenSelectionStore(ctx context.Context, cfg *Config, redisClient *redis.Client, logger *slog.Logger) (navigation.Store, func(), error) {
	noop := func() {}
	switch cfg.SelectionBackend {
	case SelectionPostgres:
		store, closeFn, err := OpenPGSelectionStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, noop, err
		}
		return store, closeFn, nil
	case SelectionRedis:
		if redisClient == nil {
			logger.Warn("redis unavailable, selections kept in memory")
			return navigation.NewMemoryStore(), noop, nil
		}
		return navigation.NewRedisStore(redisClient, cfg.SelectionTTL), noop, nil
	case SelectionMemory:
		return navigation.NewMemoryStore(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown selection backend %q", cfg.SelectionBackend)
}

// OpenPGSelectionStore connects to Postgres and creates the selections table.
func OpenPGSelectionStore(ctx context.Context, dsn string) (*navigation.PGStore, func(), error) {
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return nil, func() {}, err
	}
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return navigation.NewPGStore(tx).EnsureSchema(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	return navigation.NewPGStore(pool), pool.Close, nil
}
