package masterdata

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Service exposes outlet and processing record operations.
type Service interface {
	ListOutlets(ctx context.Context, activeOnly bool) ([]Outlet, error)
	GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error)
	CreateOutlet(ctx context.Context, input CreateOutletInput) (Outlet, error)
	ListProcessingRecords(ctx context.Context, page, perPage int) ([]ProcessingRecord, shared.Pagination, error)
	GetProcessingRecord(ctx context.Context, id uuid.UUID) (ProcessingRecord, error)
	CreateProcessingRecord(ctx context.Context, input CreateProcessingRecordInput) (ProcessingRecord, error)
}

type service struct {
	repo Repository
}

// NewService creates the master data service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListOutlets(ctx context.Context, activeOnly bool) ([]Outlet, error) {
	return s.repo.ListOutlets(ctx, activeOnly)
}

func (s *service) GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error) {
	return s.repo.GetOutlet(ctx, id)
}

func (s *service) CreateOutlet(ctx context.Context, input CreateOutletInput) (Outlet, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return Outlet{}, shared.NewValidationError("outlet: code and name required")
	}
	now := time.Now().UTC()
	outlet := Outlet{
		ID:        uuid.New(),
		Code:      strings.ToUpper(code),
		Name:      name,
		Address:   strings.TrimSpace(input.Address),
		Contact:   strings.TrimSpace(input.Contact),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateOutlet(ctx, outlet); err != nil {
		return Outlet{}, err
	}
	return outlet, nil
}

func (s *service) ListProcessingRecords(ctx context.Context, page, perPage int) ([]ProcessingRecord, shared.Pagination, error) {
	total, err := s.repo.CountProcessingRecords(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	records, err := s.repo.ListProcessingRecords(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, p, nil
}

func (s *service) GetProcessingRecord(ctx context.Context, id uuid.UUID) (ProcessingRecord, error) {
	return s.repo.GetProcessingRecord(ctx, id)
}

func (s *service) CreateProcessingRecord(ctx context.Context, input CreateProcessingRecordInput) (ProcessingRecord, error) {
	number := strings.TrimSpace(input.RecordNumber)
	if number == "" {
		return ProcessingRecord{}, shared.NewValidationError("processing record: number required")
	}
	if input.ProcessedWeightKg > input.IntakeWeightKg {
		return ProcessingRecord{}, shared.NewValidationError("processing record: processed weight exceeds intake")
	}
	now := time.Now().UTC()
	rec := ProcessingRecord{
		ID:                uuid.New(),
		RecordNumber:      number,
		Species:           strings.TrimSpace(input.Species),
		IntakeWeightKg:    input.IntakeWeightKg,
		ProcessedWeightKg: input.ProcessedWeightKg,
		ProcessedAt:       now,
		CreatedAt:         now,
	}
	if err := s.repo.CreateProcessingRecord(ctx, rec); err != nil {
		return ProcessingRecord{}, err
	}
	return rec, nil
}
