package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Create(ctx context.Context, loc Location) error
	Get(ctx context.Context, id uuid.UUID) (Location, error)
	List(ctx context.Context) ([]Location, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	Refresh(ctx context.Context, id uuid.UUID) (float64, error)
}

// Service coordinates the storage location registry.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Create registers a new active location with an empty cached counter.
func (s *Service) Create(ctx context.Context, input CreateLocationInput) (Location, error) {
	if input.Name == "" {
		return Location{}, shared.NewValidationError("storage: name required")
	}
	if input.CapacityKg <= 0 {
		return Location{}, shared.NewValidationError("storage: capacity must be positive")
	}
	loc := Location{
		ID:         uuid.New(),
		Name:       input.Name,
		CapacityKg: input.CapacityKg,
		Status:     LocationActive,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Get returns one location.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	return s.repo.Get(ctx, id)
}

// List returns all locations. The cached usage counter on each row may lag
// the ledger; display surfaces wanting the live figure use the aggregator.
func (s *Service) List(ctx context.Context) ([]Location, error) {
	return s.repo.List(ctx)
}

// Recompute refreshes the cached usage counter for one location.
func (s *Service) Recompute(ctx context.Context, id uuid.UUID) (float64, error) {
	return s.repo.Refresh(ctx, id)
}

// RecomputeAll refreshes every cached counter. Each location is independent,
// so refreshes fan out with bounded concurrency; the first error is returned
// after the full set has been attempted.
func (s *Service) RecomputeAll(ctx context.Context) error {
	ids, err := s.repo.ListIDs(ctx)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.repo.Refresh(ctx, id); err != nil {
				s.logger.Warn("usage refresh failed", slog.String("location_id", id.String()), slog.Any("error", err))
				return fmt.Errorf("storage: refresh %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
