package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Repository persists outlets and processing records.
type Repository interface {
	ListOutlets(ctx context.Context, activeOnly bool) ([]Outlet, error)
	GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error)
	CreateOutlet(ctx context.Context, o Outlet) error
	ListProcessingRecords(ctx context.Context, limit, offset int) ([]ProcessingRecord, error)
	CountProcessingRecords(ctx context.Context) (int, error)
	GetProcessingRecord(ctx context.Context, id uuid.UUID) (ProcessingRecord, error)
	CreateProcessingRecord(ctx context.Context, rec ProcessingRecord) error
}

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a repository backed by PostgreSQL.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ListOutlets(ctx context.Context, activeOnly bool) ([]Outlet, error) {
	query := `SELECT id, code, name, address, contact, active, created_at, updated_at FROM outlets`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list outlets: %w", err)
	}
	defer rows.Close()

	var outlets []Outlet
	for rows.Next() {
		var o Outlet
		if err := rows.Scan(&o.ID, &o.Code, &o.Name, &o.Address, &o.Contact, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		outlets = append(outlets, o)
	}
	return outlets, rows.Err()
}

func (r *repo) GetOutlet(ctx context.Context, id uuid.UUID) (Outlet, error) {
	var o Outlet
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, address, contact, active, created_at, updated_at FROM outlets WHERE id = $1`, id).
		Scan(&o.ID, &o.Code, &o.Name, &o.Address, &o.Contact, &o.Active, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Outlet{}, shared.ErrNotFound
	}
	return o, err
}

func (r *repo) CreateOutlet(ctx context.Context, o Outlet) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO outlets (id, code, name, address, contact, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		o.ID, o.Code, o.Name, o.Address, o.Contact, o.Active, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("masterdata: create outlet: %w", err)
	}
	return nil
}

func (r *repo) ListProcessingRecords(ctx context.Context, limit, offset int) ([]ProcessingRecord, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, record_number, species, intake_weight_kg, processed_weight_kg, processed_at, created_at
FROM processing_records ORDER BY processed_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("masterdata: list processing records: %w", err)
	}
	defer rows.Close()

	var records []ProcessingRecord
	for rows.Next() {
		var rec ProcessingRecord
		if err := rows.Scan(&rec.ID, &rec.RecordNumber, &rec.Species, &rec.IntakeWeightKg,
			&rec.ProcessedWeightKg, &rec.ProcessedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repo) CountProcessingRecords(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM processing_records`).Scan(&total); err != nil {
		return 0, fmt.Errorf("masterdata: count processing records: %w", err)
	}
	return total, nil
}

func (r *repo) GetProcessingRecord(ctx context.Context, id uuid.UUID) (ProcessingRecord, error) {
	var rec ProcessingRecord
	err := r.db.QueryRow(ctx, `
SELECT id, record_number, species, intake_weight_kg, processed_weight_kg, processed_at, created_at
FROM processing_records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.RecordNumber, &rec.Species, &rec.IntakeWeightKg,
			&rec.ProcessedWeightKg, &rec.ProcessedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProcessingRecord{}, shared.ErrNotFound
	}
	return rec, err
}

func (r *repo) CreateProcessingRecord(ctx context.Context, rec ProcessingRecord) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO processing_records (id, record_number, species, intake_weight_kg, processed_weight_kg, processed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RecordNumber, rec.Species, rec.IntakeWeightKg, rec.ProcessedWeightKg, rec.ProcessedAt, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("masterdata: create processing record: %w", err)
	}
	return nil
}
