package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New creates a new PostgreSQL connection pool.
func New(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}

// Connect pings with bounded exponential backoff before giving up. Retries
// cover transient startup races only; nothing is retried after a partial
// mutation has been applied.
func Connect(ctx context.Context, dsn string, attempts int) (*pgxpool.Pool, error) {
	if attempts <= 0 {
		attempts = 1
	}
	backoff := 250 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := New(ctx, dsn)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 4*time.Second {
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("platform/db: connect after %d attempts: %w", attempts, lastErr)
}
