package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	locations  map[uuid.UUID]*Location
	refreshErr map[uuid.UUID]error
	refreshed  []uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		locations:  make(map[uuid.UUID]*Location),
		refreshErr: make(map[uuid.UUID]error),
	}
}

func (m *memoryRepo) Create(ctx context.Context, loc Location) error {
	copied := loc
	m.locations[loc.ID] = &copied
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	loc, ok := m.locations[id]
	if !ok {
		return Location{}, shared.ErrNotFound
	}
	return *loc, nil
}

func (m *memoryRepo) List(ctx context.Context) ([]Location, error) {
	out := make([]Location, 0, len(m.locations))
	for _, loc := range m.locations {
		out = append(out, *loc)
	}
	return out, nil
}

func (m *memoryRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(m.locations))
	for id := range m.locations {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryRepo) Refresh(ctx context.Context, id uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshErr[id]; err != nil {
		return 0, err
	}
	m.refreshed = append(m.refreshed, id)
	loc, ok := m.locations[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return loc.CurrentUsageKg, nil
}

func TestCreateStartsActiveAndEmpty(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	loc, err := svc.Create(context.Background(), CreateLocationInput{Name: "Freezer A", CapacityKg: 500})
	require.NoError(t, err)
	assert.Equal(t, LocationActive, loc.Status)
	assert.Zero(t, loc.CurrentUsageKg)
	assert.False(t, loc.CreatedAt.IsZero())

	stored, err := svc.Get(context.Background(), loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Freezer A", stored.Name)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateLocationInput{CapacityKg: 500})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Create(ctx, CreateLocationInput{Name: "Freezer A", CapacityKg: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Create(ctx, CreateLocationInput{Name: "Freezer A", CapacityKg: -10})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGetUnknownLocation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecomputeAllVisitsEveryLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, CreateLocationInput{Name: time.Now().String(), CapacityKg: 100})
		require.NoError(t, err)
	}

	require.NoError(t, svc.RecomputeAll(ctx))
	assert.Len(t, repo.refreshed, 3)
}

func TestRecomputeAllContinuesPastFailures(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	bad, err := svc.Create(ctx, CreateLocationInput{Name: "Broken", CapacityKg: 100})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateLocationInput{Name: "Fine", CapacityKg: 100})
	require.NoError(t, err)

	boom := errors.New("usage query failed")
	repo.refreshErr[bad.ID] = boom

	err = svc.RecomputeAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, repo.refreshed, 1)
}
