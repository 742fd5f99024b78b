package shared

// UsageReconcileLockKey guards the storage-usage reconciliation job so only
// one worker instance recomputes cached counters at a time.
const UsageReconcileLockKey = "storage:usage:reconcile:lock"

// StockCacheKey is the redis key holding the cached available-stock read model.
const StockCacheKey = "stock:available:v1"
