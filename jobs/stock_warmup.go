package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/coldharbor-fpm/coldharbor/internal/stock"
)

// StockWarmer rebuilds the cached stock read model so the first operator
// request after an invalidation does not pay the aggregation cost.
type StockWarmer struct {
	stock  *stock.Service
	logger *slog.Logger
}

// NewStockWarmer constructs StockWarmer.
func NewStockWarmer(stockService *stock.Service, logger *slog.Logger) *StockWarmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockWarmer{stock: stockService, logger: logger}
}

// Handle processes TaskStockCacheWarmup.
func (s *StockWarmer) Handle(ctx context.Context, t *asynq.Task) error {
	snapshot, err := s.stock.Refresh(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("stock cache warmed", slog.Int("locations", len(snapshot.Locations)))
	return nil
}
