package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

type memoryBatch struct {
	readyForDispatch int64
}

type memoryRepo struct {
	orders     map[uuid.UUID]OutletOrder
	dispatches map[uuid.UUID]DispatchRecord
	entries    map[uuid.UUID]*ledger.LiveEntry
	batches    map[uuid.UUID]*memoryBatch
	usage      map[uuid.UUID]float64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:     map[uuid.UUID]OutletOrder{},
		dispatches: map[uuid.UUID]DispatchRecord{},
		entries:    map[uuid.UUID]*ledger.LiveEntry{},
		batches:    map[uuid.UUID]*memoryBatch{},
		usage:      map[uuid.UUID]float64{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapOrders := make(map[uuid.UUID]OutletOrder, len(m.orders))
	for k, v := range m.orders {
		snapOrders[k] = v
	}
	snapDispatches := make(map[uuid.UUID]DispatchRecord, len(m.dispatches))
	for k, v := range m.dispatches {
		snapDispatches[k] = v
	}
	snapEntries := make(map[uuid.UUID]*ledger.LiveEntry, len(m.entries))
	for k, v := range m.entries {
		c := *v
		snapEntries[k] = &c
	}
	snapBatches := make(map[uuid.UUID]*memoryBatch, len(m.batches))
	for k, v := range m.batches {
		c := *v
		snapBatches[k] = &c
	}
	if err := fn(ctx, (*memoryTx)(m)); err != nil {
		m.orders = snapOrders
		m.dispatches = snapDispatches
		m.entries = snapEntries
		m.batches = snapBatches
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return OutletOrder{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]OutletOrder, error) {
	var out []OutletOrder
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryRepo) Dispatch(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error) {
	d, ok := m.dispatches[orderID]
	if !ok {
		return DispatchRecord{}, shared.ErrNotFound
	}
	return d, nil
}

type memoryTx memoryRepo

func (m *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return OutletOrder{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *memoryTx) Insert(ctx context.Context, o OutletOrder) error {
	m.orders[o.ID] = o
	return nil
}

func (m *memoryTx) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	o, ok := m.orders[id]
	if !ok {
		return shared.ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return nil
}

func (m *memoryTx) LockedEntriesBySize(ctx context.Context, size shared.SizeClass) ([]ledger.LiveEntry, error) {
	var out []ledger.LiveEntry
	for _, e := range m.entries {
		if e.SizeClass == size && e.WeightGrams > 0 && e.Pieces > 0 {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memoryTx) LockedEntries(ctx context.Context) ([]ledger.LiveEntry, error) {
	var out []ledger.LiveEntry
	for _, e := range m.entries {
		if e.WeightGrams > 0 && e.Pieces > 0 {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memoryTx) ApplyDeductions(ctx context.Context, deductions []ledger.Deduction) error {
	for _, d := range deductions {
		e, ok := m.entries[d.EntryID]
		if !ok || e.WeightGrams < d.WeightGrams || e.Pieces < d.Pieces {
			return shared.ErrConflict
		}
		e.WeightGrams -= d.WeightGrams
		e.Pieces -= d.Pieces
	}
	return nil
}

func (m *memoryTx) InsertDispatch(ctx context.Context, d DispatchRecord) error {
	m.dispatches[d.OrderID] = d
	return nil
}

func (m *memoryTx) DispatchForUpdate(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error) {
	d, ok := m.dispatches[orderID]
	if !ok {
		return DispatchRecord{}, shared.ErrNotFound
	}
	return d, nil
}

func (m *memoryTx) FinalizeDispatch(ctx context.Context, d DispatchRecord) error {
	m.dispatches[d.OrderID] = d
	return nil
}

func (m *memoryTx) ReduceReadyForDispatch(ctx context.Context, batchID uuid.UUID, by int64) error {
	if b, ok := m.batches[batchID]; ok {
		b.readyForDispatch -= by
		if b.readyForDispatch < 0 {
			b.readyForDispatch = 0
		}
	}
	return nil
}

func (m *memoryTx) RefreshUsage(ctx context.Context, locationID uuid.UUID) (float64, error) {
	var grams float64
	for _, e := range m.entries {
		if e.LocationID == locationID {
			grams += e.WeightGrams
		}
	}
	m.usage[locationID] = ledger.GramsToKg(grams)
	return m.usage[locationID], nil
}

func (m *memoryRepo) addEntry(location uuid.UUID, size shared.SizeClass, pieces int64, weightKg float64, seq int64, createdAt time.Time) uuid.UUID {
	id := uuid.New()
	batchID := uuid.New()
	m.batches[batchID] = &memoryBatch{readyForDispatch: pieces}
	m.entries[id] = &ledger.LiveEntry{
		Entry: ledger.Entry{
			ID:          id,
			Seq:         seq,
			BatchID:     batchID,
			SizeClass:   size,
			LocationID:  location,
			Pieces:      pieces,
			WeightGrams: ledger.KgToGrams(weightKg),
			CreatedAt:   createdAt,
		},
	}
	return id
}

func (m *memoryRepo) liveKg(size shared.SizeClass) float64 {
	var grams float64
	for _, e := range m.entries {
		if e.SizeClass == size {
			grams += e.WeightGrams
		}
	}
	return ledger.GramsToKg(grams)
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, nil)
}

func pendingOrder(t *testing.T, svc *Service, input CreateInput) OutletOrder {
	t.Helper()
	order, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	return order
}

func TestCreateDerivesTotalValue(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 100, 6: 50},
		PricePerKg:     decimal.NewFromFloat(12.50),
	})
	require.InDelta(t, 150, order.TotalRequestedKg(), 0.001)
	require.True(t, order.TotalValue.Equal(decimal.NewFromFloat(1875)), "got %s", order.TotalValue)
}

func TestCreateRequiresQuantity(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	_, err := svc.Create(context.Background(), CreateInput{OutletID: uuid.New()})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestConfirmDeductsFIFOAndSchedulesDispatch(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	now := time.Now().UTC()
	oldest := repo.addEntry(tank, 4, 100, 200, 1, now.Add(-2*time.Hour))
	repo.addEntry(tank, 4, 100, 200, 2, now.Add(-time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 250},
		PricePerKg:     decimal.NewFromInt(10),
	})

	confirmed, dispatch, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.Equal(t, DispatchScheduled, dispatch.Status)
	require.InDelta(t, 250, dispatch.TotalWeightKg, 0.001)
	require.InDelta(t, 250, dispatch.SizeBreakdown[4], 0.001)
	require.Len(t, dispatch.Lines, 2)

	// Oldest entry consumed whole, the newer one partially.
	require.Zero(t, repo.entries[oldest].WeightGrams)
	require.InDelta(t, 150, repo.liveKg(4), 0.001)
	require.InDelta(t, 150, repo.usage[tank], 0.001)
}

func TestConfirmIsAllOrNothingAcrossSizes(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	now := time.Now().UTC()
	repo.addEntry(tank, 4, 100, 200, 1, now.Add(-time.Hour))
	repo.addEntry(tank, 6, 20, 40, 2, now.Add(-time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 100, 6: 60},
		PricePerKg:     decimal.NewFromInt(10),
	})

	_, _, err := svc.Confirm(context.Background(), order.ID)
	var shortfall *ShortfallError
	require.ErrorAs(t, err, &shortfall)
	require.Len(t, shortfall.Shortfalls, 1)
	require.Equal(t, shared.SizeClass(6), shortfall.Shortfalls[0].SizeClass)
	require.InDelta(t, 20, shortfall.Shortfalls[0].ShortfallKg, 0.001)

	// The coverable size 4 must not have been deducted.
	require.InDelta(t, 200, repo.liveKg(4), 0.001)
	require.InDelta(t, 40, repo.liveKg(6), 0.001)
	got, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	_, err = repo.Dispatch(context.Background(), order.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConfirmTwiceDoesNotDoubleDeduct(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	repo.addEntry(tank, 4, 100, 200, 1, time.Now().UTC().Add(-time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 100},
		PricePerKg:     decimal.NewFromInt(10),
	})

	first, firstDispatch, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	second, secondDispatch, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, firstDispatch.ID, secondDispatch.ID)
	require.InDelta(t, 100, repo.liveKg(4), 0.001)
}

func TestConfirmPooledAnySize(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	now := time.Now().UTC()
	repo.addEntry(tank, 2, 50, 100, 1, now.Add(-3*time.Hour))
	repo.addEntry(tank, 7, 50, 100, 2, now.Add(-2*time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:          uuid.New(),
		RequestedWeightKg: 150,
		PricePerKg:        decimal.NewFromInt(8),
	})

	_, dispatch, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 150, dispatch.TotalWeightKg, 0.001)
	// Oldest entries first regardless of size class.
	require.InDelta(t, 100, dispatch.SizeBreakdown[2], 0.001)
	require.InDelta(t, 50, dispatch.SizeBreakdown[7], 0.001)
}

func TestConfirmPooledRespectsRequestedSizes(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	now := time.Now().UTC()
	repo.addEntry(tank, 2, 50, 100, 1, now.Add(-3*time.Hour))
	repo.addEntry(tank, 7, 50, 100, 2, now.Add(-2*time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:          uuid.New(),
		RequestedSizes:    []int{7},
		RequestedWeightKg: 80,
		PricePerKg:        decimal.NewFromInt(8),
	})

	_, dispatch, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	require.InDelta(t, 80, dispatch.SizeBreakdown[7], 0.001)
	require.Zero(t, dispatch.SizeBreakdown[2])
	require.InDelta(t, 100, repo.liveKg(2), 0.001)
}

func TestDispatchFinalizesAndReducesBatchCounters(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	entryID := repo.addEntry(tank, 4, 100, 200, 1, time.Now().UTC().Add(-time.Hour))
	batchID := repo.entries[entryID].BatchID

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 200},
		PricePerKg:     decimal.NewFromInt(10),
	})
	_, _, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)
	readyBefore := repo.batches[batchID].readyForDispatch

	dispatched, record, err := svc.Dispatch(context.Background(), order.ID, nil, "Outlet 7")
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, dispatched.Status)
	require.Equal(t, DispatchDispatched, record.Status)
	require.Equal(t, "Outlet 7", record.Destination)
	require.Less(t, repo.batches[batchID].readyForDispatch, readyBefore)

	// Second dispatch is a no-op on the existing state.
	again, recordAgain, err := svc.Dispatch(context.Background(), order.ID, nil, "ignored")
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, again.Status)
	require.Equal(t, record.Destination, recordAgain.Destination)
}

func TestDispatchPickedOverrideReplacesPlan(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	entryID := repo.addEntry(tank, 4, 100, 200, 1, time.Now().UTC().Add(-time.Hour))
	batchID := repo.entries[entryID].BatchID

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 100},
		PricePerKg:     decimal.NewFromInt(10),
	})
	_, _, err := svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)

	picked := []PickedItem{{EntryID: entryID, BatchID: batchID, SizeClass: 4, Pieces: 48, WeightKg: 97.5}}
	_, record, err := svc.Dispatch(context.Background(), order.ID, picked, "")
	require.NoError(t, err)
	require.InDelta(t, 97.5, record.TotalWeightKg, 0.001)
	require.EqualValues(t, 48, record.TotalPieces)
	require.Len(t, record.Lines, 1)
}

func TestDispatchRequiresConfirmed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:          uuid.New(),
		RequestedWeightKg: 10,
		PricePerKg:        decimal.NewFromInt(10),
	})
	_, _, err := svc.Dispatch(context.Background(), order.ID, nil, "")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestCancelPendingOnly(t *testing.T) {
	repo := newMemoryRepo()
	tank := uuid.New()
	repo.addEntry(tank, 4, 100, 200, 1, time.Now().UTC().Add(-time.Hour))

	svc := newTestService(repo)
	order := pendingOrder(t, svc, CreateInput{
		OutletID:       uuid.New(),
		SizeQuantities: shared.SizeDistribution{4: 100},
		PricePerKg:     decimal.NewFromInt(10),
	})

	cancelled, err := svc.Cancel(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.InDelta(t, 200, repo.liveKg(4), 0.001)

	// Cancelling again is a no-op; confirming a cancelled order fails.
	_, err = svc.Cancel(context.Background(), order.ID)
	require.NoError(t, err)
	_, _, err = svc.Confirm(context.Background(), order.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}
