package sorting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Batch, error)
	List(ctx context.Context, filter ListFilter) ([]Batch, error)
}

// IdempotencyPort guards completion against request-level replays across
// transactions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort emits best-effort audit events after commit.
type AuditPort interface {
	RecordBestEffort(ctx context.Context, event shared.AuditEvent)
}

// Invalidator drops the cached stock read model after a committed mutation.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service manages sorting batches and materialises completed lots into the
// stock ledger.
type Service struct {
	repo        RepositoryPort
	seq         *ledger.Sequence
	idempotency IdempotencyPort
	audit       AuditPort
	invalidator Invalidator
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService builds Service. Idempotency, audit, invalidator and metrics may
// be nil in tests.
func NewService(repo RepositoryPort, seq *ledger.Sequence, idempotency IdempotencyPort, audit AuditPort, invalidator Invalidator, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		seq:         seq,
		idempotency: idempotency,
		audit:       audit,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create registers a pending sorting batch with a monotonic batch number.
func (s *Service) Create(ctx context.Context, input CreateInput) (Batch, error) {
	if input.ProcessingRecordID == uuid.Nil {
		return Batch{}, shared.NewValidationError("sorting: processing record required")
	}
	if input.LocationID == uuid.Nil {
		return Batch{}, shared.NewValidationError("sorting: storage location required")
	}
	if len(input.SizeDistribution) == 0 {
		return Batch{}, shared.NewValidationError("sorting: size distribution required")
	}
	if err := input.SizeDistribution.Validate(); err != nil {
		return Batch{}, shared.NewValidationError("%s", err.Error())
	}
	for _, class := range input.SizeDistribution.Classes() {
		if input.SizeDistribution[class] <= 0 {
			return Batch{}, shared.NewValidationError("sorting: size %s has no weight", class)
		}
		if input.PieceCounts[class] <= 0 {
			return Batch{}, shared.NewValidationError("sorting: size %s needs a piece count", class)
		}
	}

	now := time.Now().UTC()
	batch := Batch{
		ID:                 uuid.New(),
		BatchNumber:        s.seq.NextBatchNumber(),
		ProcessingRecordID: input.ProcessingRecordID,
		LocationID:         input.LocationID,
		SizeDistribution:   input.SizeDistribution,
		PieceCounts:        input.PieceCounts,
		Status:             BatchPending,
		CreatedAt:          now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, batch)
	})
	if err != nil {
		return Batch{}, err
	}

	s.auditEvent(ctx, "sorting:create", batch.ID, batchValues(batch))
	return batch, nil
}

// Start moves a pending batch to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.transition(ctx, id, BatchInProgress, BatchStatus.CanStart)
}

// Fail marks a batch failed. Nothing reaches the ledger.
func (s *Service) Fail(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.transition(ctx, id, BatchFailed, BatchStatus.CanFail)
}

// Complete materialises the batch into the stock ledger: one entry per size
// class, capacity checked against live weight at the destination, at most one
// completed batch per processing record. Completing an already completed
// batch returns the existing state.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (Batch, error) {
	var (
		batch Batch
		noop  bool
	)

	key := ""
	if s.idempotency != nil {
		key = "sorting:complete:" + id.String()
		if err := s.idempotency.CheckAndInsert(ctx, key, "sorting"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.repo.Get(ctx, id)
			}
			return Batch{}, err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == BatchCompleted {
			batch, noop = b, true
			return nil
		}
		if !b.Status.CanComplete() {
			return fmt.Errorf("%w: batch is %s", shared.ErrInvalidStatus, b.Status)
		}

		duplicate, err := tx.HasCompletedForProcessingRecord(ctx, b.ProcessingRecordID)
		if err != nil {
			return err
		}
		if duplicate {
			return &shared.DuplicateRequestError{
				Detail: fmt.Sprintf("processing record %s already has a completed batch", b.ProcessingRecordID),
			}
		}

		location, err := tx.LocationForUpdate(ctx, b.LocationID)
		if err != nil {
			return err
		}
		if location.Status != storage.LocationActive {
			return shared.NewValidationError("sorting: location %s is inactive", location.Name)
		}
		liveGrams, err := tx.LiveWeightGramsAt(ctx, b.LocationID)
		if err != nil {
			return err
		}
		totalKg := b.SizeDistribution.TotalKg()
		freeKg := location.CapacityKg - ledger.GramsToKg(liveGrams)
		if freeKg < totalKg {
			return &shared.CapacityExceededError{
				LocationName: location.Name,
				RequiredKg:   totalKg,
				AvailableKg:  freeKg,
			}
		}

		now := time.Now().UTC()
		var readyCount int64
		for _, class := range b.SizeDistribution.Classes() {
			pieces := b.PieceCounts[class]
			readyCount += pieces
			entry := ledger.Entry{
				ID:          uuid.New(),
				Seq:         s.seq.Next(),
				BatchID:     b.ID,
				SizeClass:   class,
				LocationID:  b.LocationID,
				Pieces:      pieces,
				WeightGrams: ledger.KgToGrams(b.SizeDistribution[class]),
				CreatedAt:   now,
			}
			if err := tx.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}

		if err := tx.UpdateStatus(ctx, b.ID, BatchCompleted, &now, readyCount); err != nil {
			return err
		}
		if _, err := tx.RefreshUsage(ctx, b.LocationID); err != nil {
			return err
		}

		batch = b
		batch.Status = BatchCompleted
		batch.CompletedAt = &now
		batch.ReadyForDispatchCount = readyCount
		return nil
	})
	if err != nil {
		if s.idempotency != nil && key != "" {
			if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
				s.logger.Warn("idempotency rollback failed", slog.String("key", key), slog.Any("error", delErr))
			}
		}
		return Batch{}, err
	}
	if noop {
		return batch, nil
	}

	s.auditEvent(ctx, "sorting:complete", id, batchValues(batch))
	s.metrics.ObserveBatchCompleted()
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return batch, nil
}

// Get returns one batch.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Batch, error) {
	return s.repo.Get(ctx, id)
}

// List returns batches.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Batch, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to BatchStatus, allowed func(BatchStatus) bool) (Batch, error) {
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(b.Status) {
			return fmt.Errorf("%w: batch is %s", shared.ErrInvalidStatus, b.Status)
		}
		if err := tx.UpdateStatus(ctx, b.ID, to, b.CompletedAt, b.ReadyForDispatchCount); err != nil {
			return err
		}
		batch = b
		batch.Status = to
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.auditEvent(ctx, "sorting:"+string(to), id, batchValues(batch))
	return batch, nil
}

func (s *Service) auditEvent(ctx context.Context, action string, id uuid.UUID, values map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordBestEffort(ctx, shared.AuditEvent{
		Actor:     shared.ActorFromContext(ctx),
		Action:    action,
		TableName: "sorting_batches",
		RecordID:  id.String(),
		NewValues: values,
	})
}

func batchValues(b Batch) map[string]any {
	return map[string]any{
		"batch_number":        b.BatchNumber,
		"storage_location_id": b.LocationID.String(),
		"total_kg":            b.SizeDistribution.TotalKg(),
		"status":              string(b.Status),
	}
}
