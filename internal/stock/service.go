package stock

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// Reader abstracts repository reads for the service.
type Reader interface {
	Locations(ctx context.Context) ([]storage.Location, error)
	LiveEntries(ctx context.Context) ([]ledger.LiveEntry, error)
	LiveBySize(ctx context.Context, size shared.SizeClass) ([]ledger.LiveEntry, error)
}

// Service serves the aggregated read model and advisory allocation plans.
type Service struct {
	reader  Reader
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService builds Service. Cache and metrics may be nil.
func NewService(reader Reader, cache *Cache, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, cache: cache, logger: logger, metrics: metrics}
}

// Available builds the (location x size class) read model. Registry or ledger
// failures propagate unchanged; no partial aggregation is returned. The redis
// cache only serves repeat preview reads and is bypassed by Refresh.
func (s *Service) Available(ctx context.Context) (AvailableStock, error) {
	if cached, ok := s.cache.Get(ctx); ok {
		return cached, nil
	}
	return s.Refresh(ctx)
}

// Refresh rebuilds the read model from live data and repopulates the cache.
func (s *Service) Refresh(ctx context.Context) (AvailableStock, error) {
	locations, err := s.reader.Locations(ctx)
	if err != nil {
		return AvailableStock{}, err
	}
	entries, err := s.reader.LiveEntries(ctx)
	if err != nil {
		return AvailableStock{}, err
	}
	stock := BuildAvailable(locations, entries, time.Now())
	if err := s.cache.Set(ctx, stock); err != nil {
		s.logger.Warn("stock cache set failed", slog.Any("error", err))
	}
	return stock, nil
}

// Invalidate drops the cached read model after a committed mutation.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("stock cache invalidate failed", slog.Any("error", err))
	}
}

// Plan runs the FIFO allocator against current live stock. Advisory: results
// are stale the moment they return, and committing flows re-plan inside
// their transaction.
func (s *Service) Plan(ctx context.Context, req Requirement) (Plan, error) {
	if !req.SizeClass.Valid() {
		return Plan{}, shared.NewValidationError("stock: size class %d outside 0-%d", req.SizeClass, shared.MaxSizeClass)
	}
	switch req.Mode {
	case ByPieces:
		if req.Pieces <= 0 {
			return Plan{}, shared.NewValidationError("stock: requested pieces must be positive")
		}
	case ByWeight, "":
		req.Mode = ByWeight
		if req.WeightGrams <= 0 {
			return Plan{}, shared.NewValidationError("stock: requested weight must be positive")
		}
	default:
		return Plan{}, shared.NewValidationError("stock: unknown requirement mode %q", req.Mode)
	}

	entries, err := s.reader.LiveBySize(ctx, req.SizeClass)
	if err != nil {
		return Plan{}, err
	}
	plan := PlanAllocation(entries, req)
	s.metrics.ObservePlan(plan.Satisfied())
	return plan, nil
}

// OldestBatches lists batches still holding live stock for a size class,
// oldest first, so operators can rotate stock before it ages out.
func (s *Service) OldestBatches(ctx context.Context, size shared.SizeClass) ([]BatchAge, error) {
	if !size.Valid() {
		return nil, shared.NewValidationError("stock: size class %d outside 0-%d", size, shared.MaxSizeClass)
	}
	entries, err := s.reader.LiveBySize(ctx, size)
	if err != nil {
		return nil, err
	}

	byBatch := make(map[uuid.UUID]*BatchAge)
	for _, e := range entries {
		age, ok := byBatch[e.BatchID]
		if !ok {
			age = &BatchAge{BatchID: e.BatchID, BatchNumber: e.BatchNumber, OldestEntry: e.CreatedAt}
			byBatch[e.BatchID] = age
		}
		if e.CreatedAt.Before(age.OldestEntry) {
			age.OldestEntry = e.CreatedAt
		}
		age.TotalPieces += e.Pieces
		age.TotalWeightKg += ledger.GramsToKg(e.WeightGrams)
		age.Locations = appendUnique(age.Locations, e.LocationName)
	}

	batches := make([]BatchAge, 0, len(byBatch))
	for _, age := range byBatch {
		batches = append(batches, *age)
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].OldestEntry.Before(batches[j].OldestEntry) })
	return batches, nil
}

// BatchAge summarises the oldest live stock for one sorting batch.
type BatchAge struct {
	BatchID       uuid.UUID `json:"batch_id"`
	BatchNumber   string    `json:"batch_number"`
	OldestEntry   time.Time `json:"oldest_entry"`
	TotalPieces   int64     `json:"total_pieces"`
	TotalWeightKg float64   `json:"total_weight_kg"`
	Locations     []string  `json:"locations"`
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
