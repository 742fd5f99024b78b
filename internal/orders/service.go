package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/observability"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (OutletOrder, error)
	List(ctx context.Context, filter ListFilter) ([]OutletOrder, error)
	Dispatch(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error)
}

// AuditPort emits best-effort audit events after commit.
type AuditPort interface {
	RecordBestEffort(ctx context.Context, event shared.AuditEvent)
}

// Invalidator drops the cached stock read model after a committed mutation.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service drives outlet orders through confirm, dispatch and cancel.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator Invalidator
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewService builds Service. Audit, invalidator and metrics may be nil in
// tests.
func NewService(repo RepositoryPort, audit AuditPort, invalidator Invalidator, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, invalidator: invalidator, metrics: metrics, logger: logger}
}

// Create registers a pending outlet order. Total value is derived from the
// requested weight, never trusted from the caller.
func (s *Service) Create(ctx context.Context, input CreateInput) (OutletOrder, error) {
	if input.OutletID == uuid.Nil {
		return OutletOrder{}, shared.NewValidationError("order: outlet required")
	}
	if err := input.SizeQuantities.Validate(); err != nil {
		return OutletOrder{}, shared.NewValidationError("%s", err.Error())
	}
	if len(input.SizeQuantities) == 0 && input.RequestedWeightKg <= 0 {
		return OutletOrder{}, shared.NewValidationError("order: either size quantities or a requested weight is required")
	}
	if input.PricePerKg.IsNegative() {
		return OutletOrder{}, shared.NewValidationError("order: price must not be negative")
	}

	sizes := make([]shared.SizeClass, 0, len(input.RequestedSizes))
	for _, raw := range input.RequestedSizes {
		class := shared.SizeClass(raw)
		if !class.Valid() {
			return OutletOrder{}, shared.NewValidationError("order: size class %d outside 0-%d", raw, shared.MaxSizeClass)
		}
		sizes = appendUniqueSize(sizes, class)
	}

	now := time.Now().UTC()
	orderDate := input.OrderDate
	if orderDate.IsZero() {
		orderDate = now
	}
	order := OutletOrder{
		ID:                uuid.New(),
		OutletID:          input.OutletID,
		OrderDate:         orderDate,
		DeliveryDate:      input.DeliveryDate,
		RequestedSizes:    sizes,
		SizeQuantities:    input.SizeQuantities,
		RequestedWeightKg: input.RequestedWeightKg,
		RequestedGrade:    input.RequestedGrade,
		PricePerKg:        input.PricePerKg,
		Status:            StatusPending,
		CreatedAt:         now,
	}
	order.TotalValue = input.PricePerKg.Mul(decimal.NewFromFloat(order.TotalRequestedKg()))

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, order)
	})
	if err != nil {
		return OutletOrder{}, err
	}

	s.auditEvent(ctx, "order:create", order.ID, nil, orderValues(order))
	s.metrics.ObserveOrderEvent("created")
	return order, nil
}

// Confirm allocates stock for the order inside one serializable transaction.
// Every requested size must be fully coverable or nothing is deducted; the
// planned lines are applied as-is, never re-derived between planning and
// writing. Confirming an already confirmed order returns the existing state.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (OutletOrder, DispatchRecord, error) {
	var (
		order    OutletOrder
		dispatch DispatchRecord
		noop     bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusConfirmed {
			d, err := tx.DispatchForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			order, dispatch, noop = o, d, true
			return nil
		}
		if !o.Status.CanConfirm() {
			return fmt.Errorf("%w: order is %s", shared.ErrInvalidStatus, o.Status)
		}

		plans, err := s.planFor(ctx, tx, o)
		if err != nil {
			return err
		}
		if shortfalls := collectShortfalls(plans); len(shortfalls) > 0 {
			return &ShortfallError{OrderID: o.ID, Shortfalls: shortfalls}
		}

		var deductions []ledger.Deduction
		var lines []stock.PlanLine
		for _, plan := range plans {
			deductions = append(deductions, plan.Deductions()...)
			lines = append(lines, plan.Lines...)
		}
		if err := tx.ApplyDeductions(ctx, deductions); err != nil {
			return err
		}
		for _, locationID := range touchedLocations(lines) {
			if _, err := tx.RefreshUsage(ctx, locationID); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, o.ID, StatusConfirmed); err != nil {
			return err
		}

		dispatch = buildDispatch(o.ID, lines, time.Now().UTC())
		if err := tx.InsertDispatch(ctx, dispatch); err != nil {
			return err
		}

		order = o
		order.Status = StatusConfirmed
		return nil
	})
	if err != nil {
		s.metrics.ObserveOrderEvent("confirm_rejected")
		return OutletOrder{}, DispatchRecord{}, err
	}
	if noop {
		return order, dispatch, nil
	}

	s.auditEvent(ctx, "order:confirm", id, nil, orderValues(order))
	s.metrics.ObserveOrderEvent("confirmed")
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	return order, dispatch, nil
}

// Dispatch finalizes the scheduled dispatch record. A picked list replaces
// the planned breakdown; without one the plan stands. Ledger weights were
// already deducted at confirmation, so this step only finalizes records and
// batch dispatch counters. Dispatching an already dispatched order returns
// the existing state.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, picked []PickedItem, destination string) (OutletOrder, DispatchRecord, error) {
	var (
		order    OutletOrder
		dispatch DispatchRecord
		noop     bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusDispatched {
			d, err := tx.DispatchForUpdate(ctx, o.ID)
			if err != nil {
				return err
			}
			order, dispatch, noop = o, d, true
			return nil
		}
		if !o.Status.CanDispatch() {
			return fmt.Errorf("%w: order is %s", shared.ErrInvalidStatus, o.Status)
		}

		d, err := tx.DispatchForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if len(picked) > 0 {
			d.Lines = linesFromPicked(picked)
		}
		if destination != "" {
			d.Destination = destination
		}
		d.BatchIDs = batchIDs(d.Lines)
		d.TotalWeightKg, d.TotalPieces, d.SizeBreakdown = summarize(d.Lines)
		d.Status = DispatchDispatched
		if err := tx.FinalizeDispatch(ctx, d); err != nil {
			return err
		}

		for batchID, pieces := range piecesPerBatch(d.Lines) {
			if err := tx.ReduceReadyForDispatch(ctx, batchID, pieces); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, o.ID, StatusDispatched); err != nil {
			return err
		}

		order = o
		order.Status = StatusDispatched
		dispatch = d
		return nil
	})
	if err != nil {
		return OutletOrder{}, DispatchRecord{}, err
	}
	if noop {
		return order, dispatch, nil
	}

	s.auditEvent(ctx, "order:dispatch", id, nil, orderValues(order))
	s.metrics.ObserveOrderEvent("dispatched")
	return order, dispatch, nil
}

// Cancel voids a pending order. No stock was allocated yet, so the ledger is
// untouched.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	var order OutletOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			order = o
			return nil
		}
		if !o.Status.CanCancel() {
			return fmt.Errorf("%w: order is %s", shared.ErrInvalidStatus, o.Status)
		}
		if err := tx.UpdateStatus(ctx, o.ID, StatusCancelled); err != nil {
			return err
		}
		order = o
		order.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return OutletOrder{}, err
	}

	s.auditEvent(ctx, "order:cancel", id, nil, orderValues(order))
	s.metrics.ObserveOrderEvent("cancelled")
	return order, nil
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]OutletOrder, error) {
	return s.repo.List(ctx, filter)
}

// GetDispatch returns the dispatch record for an order.
func (s *Service) GetDispatch(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error) {
	return s.repo.Dispatch(ctx, orderID)
}

// planFor produces one plan per pinned size, or a single pooled plan across
// the requested (or all) sizes.
func (s *Service) planFor(ctx context.Context, tx TxRepository, o OutletOrder) ([]stock.Plan, error) {
	if len(o.SizeQuantities) > 0 {
		plans := make([]stock.Plan, 0, len(o.SizeQuantities))
		for _, class := range o.SizeQuantities.Classes() {
			entries, err := tx.LockedEntriesBySize(ctx, class)
			if err != nil {
				return nil, err
			}
			plans = append(plans, stock.PlanAllocation(entries, stock.Requirement{
				SizeClass:   class,
				Mode:        stock.ByWeight,
				WeightGrams: ledger.KgToGrams(o.SizeQuantities[class]),
			}))
		}
		return plans, nil
	}

	entries, err := tx.LockedEntries(ctx)
	if err != nil {
		return nil, err
	}
	plan := stock.PlanPooled(entries, ledger.KgToGrams(o.RequestedWeightKg), o.RequestedSizes)
	plan.SizeClass = -1
	return []stock.Plan{plan}, nil
}

func collectShortfalls(plans []stock.Plan) []SizeShortfall {
	var shortfalls []SizeShortfall
	for _, plan := range plans {
		if plan.ShortfallWeightGrams <= 0 {
			continue
		}
		shortfalls = append(shortfalls, SizeShortfall{
			SizeClass:   plan.SizeClass,
			RequestedKg: ledger.GramsToKg(plan.RequestedWeightGrams),
			AvailableKg: ledger.GramsToKg(plan.TotalWeightGrams()),
			ShortfallKg: ledger.GramsToKg(plan.ShortfallWeightGrams),
		})
	}
	return shortfalls
}

func buildDispatch(orderID uuid.UUID, lines []stock.PlanLine, now time.Time) DispatchRecord {
	d := DispatchRecord{
		ID:        uuid.New(),
		OrderID:   orderID,
		BatchIDs:  batchIDs(lines),
		Lines:     lines,
		Status:    DispatchScheduled,
		CreatedAt: now,
	}
	d.TotalWeightKg, d.TotalPieces, d.SizeBreakdown = summarize(lines)
	return d
}

func linesFromPicked(picked []PickedItem) []stock.PlanLine {
	lines := make([]stock.PlanLine, 0, len(picked))
	for _, item := range picked {
		lines = append(lines, stock.PlanLine{
			EntryID:     item.EntryID,
			BatchID:     item.BatchID,
			SizeClass:   shared.SizeClass(item.SizeClass),
			Pieces:      item.Pieces,
			WeightGrams: ledger.KgToGrams(item.WeightKg),
		})
	}
	return lines
}

func summarize(lines []stock.PlanLine) (totalKg float64, totalPieces int64, breakdown shared.SizeDistribution) {
	breakdown = shared.SizeDistribution{}
	var grams float64
	for _, line := range lines {
		grams += line.WeightGrams
		totalPieces += line.Pieces
		breakdown[line.SizeClass] += ledger.GramsToKg(line.WeightGrams)
	}
	return ledger.GramsToKg(grams), totalPieces, breakdown
}

func batchIDs(lines []stock.PlanLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.BatchID]; ok {
			continue
		}
		seen[line.BatchID] = struct{}{}
		ids = append(ids, line.BatchID)
	}
	return ids
}

func piecesPerBatch(lines []stock.PlanLine) map[uuid.UUID]int64 {
	counts := make(map[uuid.UUID]int64, len(lines))
	for _, line := range lines {
		counts[line.BatchID] += line.Pieces
	}
	return counts
}

func touchedLocations(lines []stock.PlanLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.LocationID]; ok {
			continue
		}
		seen[line.LocationID] = struct{}{}
		ids = append(ids, line.LocationID)
	}
	return ids
}

func appendUniqueSize(sizes []shared.SizeClass, class shared.SizeClass) []shared.SizeClass {
	for _, existing := range sizes {
		if existing == class {
			return sizes
		}
	}
	return append(sizes, class)
}

func (s *Service) auditEvent(ctx context.Context, action string, id uuid.UUID, old, new map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.RecordBestEffort(ctx, shared.AuditEvent{
		Actor:     shared.ActorFromContext(ctx),
		Action:    action,
		TableName: "outlet_orders",
		RecordID:  id.String(),
		OldValues: old,
		NewValues: new,
	})
}

func orderValues(o OutletOrder) map[string]any {
	return map[string]any{
		"outlet_id":           o.OutletID.String(),
		"requested_weight_kg": o.TotalRequestedKg(),
		"total_value":         o.TotalValue.String(),
		"status":              string(o.Status),
	}
}
