package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, error)
}

// AuditPort emits best-effort audit events after commit.
type AuditPort interface {
	RecordBestEffort(ctx context.Context, event shared.AuditEvent)
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Invalidator drops the cached stock read model after a committed mutation.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service coordinates transfer requests and approvals.
type Service struct {
	repo        RepositoryPort
	seq         *ledger.Sequence
	audit       AuditPort
	approvals   ApprovalPort
	invalidator Invalidator
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService builds Service. Audit, approvals, invalidator and metrics may be
// nil in tests.
func NewService(repo RepositoryPort, seq *ledger.Sequence, audit AuditPort, approvals ApprovalPort, invalidator Invalidator, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, seq: seq, audit: audit, approvals: approvals, invalidator: invalidator, metrics: metrics, logger: logger}
}

// Create registers a single pending transfer request.
func (s *Service) Create(ctx context.Context, input CreateInput, requestedBy string) (Transfer, error) {
	transfers, err := s.CreateBatch(ctx, []CreateInput{input}, requestedBy)
	if err != nil {
		return Transfer{}, err
	}
	return transfers[0], nil
}

// CreateBatch registers several per-size transfer requests as one atomic
// group: either every request is created or none is. This guards multi-size
// rebalancing actions against silently-half-created batches.
func (s *Service) CreateBatch(ctx context.Context, inputs []CreateInput, requestedBy string) ([]Transfer, error) {
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("transfer: at least one request required")
	}
	if requestedBy == "" {
		requestedBy = shared.AnonymousActor
	}

	now := time.Now().UTC()
	transfers := make([]Transfer, 0, len(inputs))
	for _, input := range inputs {
		if err := validateCreate(input); err != nil {
			return nil, err
		}
		transfers = append(transfers, Transfer{
			ID:             uuid.New(),
			FromLocationID: input.FromLocationID,
			ToLocationID:   input.ToLocationID,
			SizeClass:      shared.SizeClass(input.SizeClass),
			Pieces:         input.Pieces,
			WeightKg:       input.WeightKg,
			Status:         StatusPending,
			RequestedBy:    requestedBy,
			Notes:          input.Notes,
			CreatedAt:      now,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, t := range transfers {
			dup, err := tx.HasPendingDuplicate(ctx, t)
			if err != nil {
				return err
			}
			if dup {
				return &shared.DuplicateRequestError{
					Detail: fmt.Sprintf("pending transfer of %.2f kg size %s from %s to %s already exists",
						t.WeightKg, t.SizeClass, t.FromLocationID, t.ToLocationID),
				}
			}
			if err := tx.Insert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, t := range transfers {
		s.recordApproval(ctx, t.ID, requestedBy, shared.ApprovalSubmit, t.Notes)
		s.auditEvent(ctx, "transfer:create", t.ID, nil, transferValues(t))
		s.metrics.ObserveTransferEvent("created")
	}
	return transfers, nil
}

// Approve re-validates availability and destination capacity live, then moves
// stock inside one serializable transaction. Either every step applies or the
// transaction rolls back whole; a partial decrement without the matching
// destination credit can never be observed.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (Transfer, error) {
	if approvedBy == "" {
		approvedBy = shared.AnonymousActor
	}

	var before, after Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = t
		if !t.Status.CanApprove() {
			return fmt.Errorf("%w: transfer is %s", shared.ErrInvalidStatus, t.Status)
		}

		// Stock may have moved since the request was created; never trust
		// the snapshot taken at request time.
		entries, err := tx.LockedSourceEntries(ctx, t.FromLocationID, t.SizeClass)
		if err != nil {
			return err
		}
		requiredGrams := ledger.KgToGrams(t.WeightKg)
		var availableGrams float64
		for _, e := range entries {
			availableGrams += e.WeightGrams
		}
		if availableGrams < requiredGrams {
			return &shared.InsufficientStockError{
				SizeClass:    t.SizeClass,
				RequestedKg:  t.WeightKg,
				AvailableKg:  ledger.GramsToKg(availableGrams),
				ShortfallKg:  ledger.GramsToKg(requiredGrams - availableGrams),
				LocationName: t.FromName,
			}
		}

		destination, err := tx.LocationForUpdate(ctx, t.ToLocationID)
		if err != nil {
			return err
		}
		if destination.Status != storage.LocationActive {
			return shared.NewValidationError("transfer: destination %s is inactive", destination.Name)
		}
		liveAtDestination, err := tx.LiveWeightGramsAt(ctx, t.ToLocationID)
		if err != nil {
			return err
		}
		freeKg := destination.CapacityKg - ledger.GramsToKg(liveAtDestination)
		if freeKg < t.WeightKg {
			return &shared.CapacityExceededError{
				LocationName: destination.Name,
				RequiredKg:   t.WeightKg,
				AvailableKg:  freeKg,
			}
		}

		plan := stock.PlanAllocation(entries, stock.Requirement{
			SizeClass:   t.SizeClass,
			Mode:        stock.ByWeight,
			WeightGrams: requiredGrams,
		})
		if err := tx.ApplyDeductions(ctx, plan.Deductions()); err != nil {
			return err
		}

		// One destination entry per consumed source entry keeps batch
		// provenance intact and the completed-batch join valid.
		now := time.Now().UTC()
		for _, line := range plan.Lines {
			entry := ledger.Entry{
				ID:                       uuid.New(),
				Seq:                      s.seq.Next(),
				BatchID:                  line.BatchID,
				SizeClass:                t.SizeClass,
				LocationID:               t.ToLocationID,
				Pieces:                   line.Pieces,
				WeightGrams:              line.WeightGrams,
				CreatedAt:                now,
				TransferID:               &t.ID,
				TransferSourceLocationID: &t.FromLocationID,
			}
			if err := tx.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}

		// The request's piece count is an estimate; the plan decides what
		// actually moves.
		if err := tx.RecordMoved(ctx, t.ID, plan.TotalPieces()); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, t.ID, StatusApproved, &approvedBy); err != nil {
			return err
		}
		if _, err := tx.RefreshUsage(ctx, t.FromLocationID); err != nil {
			return err
		}
		if _, err := tx.RefreshUsage(ctx, t.ToLocationID); err != nil {
			return err
		}

		after = t
		after.Status = StatusApproved
		after.ApprovedBy = &approvedBy
		after.Pieces = plan.TotalPieces()
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}

	s.recordApproval(ctx, id, approvedBy, shared.ApprovalApprove, "")
	s.auditEvent(ctx, "transfer:approve", id, transferValues(before), transferValues(after))
	s.metrics.ObserveTransferEvent("approved")
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return after, nil
}

// Decline rejects a pending transfer. Status-only; the ledger is untouched.
func (s *Service) Decline(ctx context.Context, id uuid.UUID, approvedBy string) (Transfer, error) {
	if approvedBy == "" {
		approvedBy = shared.AnonymousActor
	}
	var before, after Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before = t
		if !t.Status.CanDecline() {
			return fmt.Errorf("%w: transfer is %s", shared.ErrInvalidStatus, t.Status)
		}
		if err := tx.UpdateStatus(ctx, t.ID, StatusDeclined, &approvedBy); err != nil {
			return err
		}
		after = t
		after.Status = StatusDeclined
		after.ApprovedBy = &approvedBy
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}

	s.recordApproval(ctx, id, approvedBy, shared.ApprovalDecline, "")
	s.auditEvent(ctx, "transfer:decline", id, transferValues(before), transferValues(after))
	s.metrics.ObserveTransferEvent("declined")
	return after, nil
}

// Complete marks an approved transfer as physically done. Informational.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (Transfer, error) {
	var after Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == StatusCompleted {
			after = t
			return nil
		}
		if !t.Status.CanComplete() {
			return fmt.Errorf("%w: transfer is %s", shared.ErrInvalidStatus, t.Status)
		}
		if err := tx.UpdateStatus(ctx, t.ID, StatusCompleted, nil); err != nil {
			return err
		}
		after = t
		after.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return after, nil
}

// Get returns one transfer.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List returns transfers.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	return s.repo.List(ctx, filter)
}

func validateCreate(input CreateInput) error {
	if input.FromLocationID == uuid.Nil || input.ToLocationID == uuid.Nil {
		return shared.NewValidationError("transfer: both locations required")
	}
	if input.FromLocationID == input.ToLocationID {
		return shared.NewValidationError("transfer: source and destination must differ")
	}
	if !shared.SizeClass(input.SizeClass).Valid() {
		return shared.NewValidationError("transfer: size class %d outside 0-%d", input.SizeClass, shared.MaxSizeClass)
	}
	if input.WeightKg <= 0 {
		return shared.NewValidationError("transfer: weight must be positive")
	}
	if input.Pieces < 0 {
		return shared.NewValidationError("transfer: pieces must not be negative")
	}
	return nil
}

func (s *Service) recordApproval(ctx context.Context, ref uuid.UUID, actor string, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module: "transfer",
		RefID:  ref,
		Actor:  actor,
		Action: action,
		Note:   note,
	}); err != nil {
		s.logger.Warn("approval record failed", slog.String("transfer_id", ref.String()), slog.Any("error", err))
	}
}

func (s *Service) auditEvent(ctx context.Context, action string, id uuid.UUID, old, new map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordBestEffort(ctx, shared.AuditEvent{
		Actor:     shared.ActorFromContext(ctx),
		Action:    action,
		TableName: "transfers",
		RecordID:  id.String(),
		OldValues: old,
		NewValues: new,
	})
}

func transferValues(t Transfer) map[string]any {
	if t.ID == uuid.Nil {
		return nil
	}
	return map[string]any{
		"from_storage_id": t.FromLocationID.String(),
		"to_storage_id":   t.ToLocationID.String(),
		"size_class":      int(t.SizeClass),
		"pieces":          t.Pieces,
		"weight_kg":       t.WeightKg,
		"status":          string(t.Status),
	}
}
