package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

type memoryRepo struct {
	outlets []Outlet
	records []ProcessingRecord
}

func (m *memoryRepo) ListOutlets(_ context.Context, activeOnly bool) ([]Outlet, error) {
	if !activeOnly {
		return m.outlets, nil
	}
	var out []Outlet
	for _, o := range m.outlets {
		if o.Active {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetOutlet(_ context.Context, id uuid.UUID) (Outlet, error) {
	for _, o := range m.outlets {
		if o.ID == id {
			return o, nil
		}
	}
	return Outlet{}, shared.ErrNotFound
}

func (m *memoryRepo) CreateOutlet(_ context.Context, o Outlet) error {
	m.outlets = append(m.outlets, o)
	return nil
}

func (m *memoryRepo) ListProcessingRecords(_ context.Context, limit, offset int) ([]ProcessingRecord, error) {
	if offset >= len(m.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.records) {
		end = len(m.records)
	}
	return m.records[offset:end], nil
}

func (m *memoryRepo) CountProcessingRecords(_ context.Context) (int, error) {
	return len(m.records), nil
}

func (m *memoryRepo) GetProcessingRecord(_ context.Context, id uuid.UUID) (ProcessingRecord, error) {
	for _, rec := range m.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return ProcessingRecord{}, shared.ErrNotFound
}

func (m *memoryRepo) CreateProcessingRecord(_ context.Context, rec ProcessingRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func TestCreateOutletNormalisesCode(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)

	outlet, err := svc.CreateOutlet(context.Background(), CreateOutletInput{
		Code: "  hb-01 ",
		Name: " Harbour Market ",
	})
	require.NoError(t, err)

	assert.Equal(t, "HB-01", outlet.Code)
	assert.Equal(t, "Harbour Market", outlet.Name)
	assert.True(t, outlet.Active)
	require.Len(t, repo.outlets, 1)
}

func TestCreateOutletRejectsBlankName(t *testing.T) {
	svc := NewService(&memoryRepo{})

	_, err := svc.CreateOutlet(context.Background(), CreateOutletInput{Code: "HB-02", Name: "   "})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCreateProcessingRecordRejectsExcessYield(t *testing.T) {
	svc := NewService(&memoryRepo{})

	_, err := svc.CreateProcessingRecord(context.Background(), CreateProcessingRecordInput{
		RecordNumber:      "PR-20260831-01",
		Species:           "salmon",
		IntakeWeightKg:    500,
		ProcessedWeightKg: 620,
	})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestListProcessingRecordsPaginates(t *testing.T) {
	repo := &memoryRepo{}
	base := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		repo.records = append(repo.records, ProcessingRecord{
			ID:           uuid.New(),
			RecordNumber: "PR-" + uuid.NewString()[:8],
			ProcessedAt:  base.Add(time.Duration(i) * time.Hour),
		})
	}
	svc := NewService(repo)

	records, pagination, err := svc.ListProcessingRecords(context.Background(), 2, 2)
	require.NoError(t, err)

	assert.Len(t, records, 2)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 5, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)

	last, _, err := svc.ListProcessingRecords(context.Background(), 3, 2)
	require.NoError(t, err)
	assert.Len(t, last, 1)
}

func TestListProcessingRecordsDefaultsPage(t *testing.T) {
	repo := &memoryRepo{records: []ProcessingRecord{{ID: uuid.New()}}}
	svc := NewService(repo)

	records, pagination, err := svc.ListProcessingRecords(context.Background(), 0, 0)
	require.NoError(t, err)

	assert.Len(t, records, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PerPage)
}
