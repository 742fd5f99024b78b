package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// IdempotencyCleaner prunes idempotency keys past their retention window.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs IdempotencyCleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// Handle processes TaskIdempotencyCleanup.
func (c *IdempotencyCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	if err := c.store.Cleanup(ctx, c.retention); err != nil {
		return err
	}
	c.logger.Info("idempotency keys pruned", slog.Duration("retention", c.retention))
	return nil
}
