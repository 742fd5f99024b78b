package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskUsageReconcile recomputes cached storage usage from the live ledger.
	TaskUsageReconcile = "storage:usage:reconcile"
	// TaskStockCacheWarmup rebuilds the cached stock read model.
	TaskStockCacheWarmup = "stock:cache:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewUsageReconcileTask constructs the usage reconciliation task.
func NewUsageReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskUsageReconcile, nil)
}

// NewStockCacheWarmupTask constructs the cache warmup task.
func NewStockCacheWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskStockCacheWarmup, nil)
}

// NewIdempotencyCleanupTask constructs the idempotency cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
