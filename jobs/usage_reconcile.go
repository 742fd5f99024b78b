package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// UsageReconciler drifts the cached per-location usage counters back to the
// authoritative live ledger sums. The advisory counters only change on
// committed mutations, so any skew left behind by crashes or manual data
// fixes is healed here.
type UsageReconciler struct {
	storage *storage.Service
	locker  *redislock.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewUsageReconciler constructs UsageReconciler. The lock client may be nil
// in tests.
func NewUsageReconciler(storageService *storage.Service, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *UsageReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	var locker *redislock.Client
	if redisClient != nil {
		locker = redislock.New(redisClient)
	}
	return &UsageReconciler{storage: storageService, locker: locker, metrics: metrics, logger: logger}
}

// Handle processes TaskUsageReconcile. The redis lock keeps concurrent
// workers from hammering the same recompute; losing the lock race is not an
// error, someone else is doing the work.
func (u *UsageReconciler) Handle(ctx context.Context, t *asynq.Task) error {
	if u.locker != nil {
		lock, err := u.locker.Obtain(ctx, shared.UsageReconcileLockKey, time.Minute, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			u.logger.Debug("usage reconcile lock held elsewhere, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				u.logger.Warn("release reconcile lock", slog.Any("error", err))
			}
		}()
	}

	started := time.Now()
	if err := u.storage.RecomputeAll(ctx); err != nil {
		return err
	}
	u.metrics.ObserveUsageReconcile()
	u.logger.Info("storage usage reconciled", slog.Duration("took", time.Since(started)))
	return nil
}
