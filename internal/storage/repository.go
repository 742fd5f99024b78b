package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Repository persists storage locations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const locationColumns = `id, name, capacity_kg, current_usage_kg, status, created_at, updated_at`

// Create inserts a location.
func (r *Repository) Create(ctx context.Context, loc Location) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO storage_locations (id, name, capacity_kg, current_usage_kg, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		loc.ID, loc.Name, loc.CapacityKg, loc.CurrentUsageKg, string(loc.Status), loc.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: create location: %w", err)
	}
	return nil
}

// Get fetches one location.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Location, error) {
	return scanLocation(r.pool.QueryRow(ctx, `SELECT `+locationColumns+` FROM storage_locations WHERE id = $1`, id))
}

// List returns all locations ordered by name.
func (r *Repository) List(ctx context.Context) ([]Location, error) {
	return queryLocations(ctx, r.pool, `SELECT `+locationColumns+` FROM storage_locations ORDER BY name ASC`)
}

// GetForUpdate locks a location row inside the caller's transaction. Locking
// the destination row serializes concurrent capacity checks against it.
func GetForUpdate(ctx context.Context, q db.Querier, id uuid.UUID) (Location, error) {
	return scanLocation(q.QueryRow(ctx, `SELECT `+locationColumns+` FROM storage_locations WHERE id = $1 FOR UPDATE`, id))
}

// RefreshUsage recomputes the cached usage counter from the live ledger sum
// and returns the fresh value in kilograms. Advisory only; correctness
// decisions read the live sum directly.
func RefreshUsage(ctx context.Context, q db.Querier, id uuid.UUID) (float64, error) {
	var usageKg float64
	err := q.QueryRow(ctx, `
UPDATE storage_locations SET current_usage_kg = (
	SELECT COALESCE(SUM(e.weight_grams), 0) / 1000.0
	FROM stock_ledger e
	JOIN sorting_batches b ON b.id = e.batch_id
	WHERE b.status = 'completed' AND e.weight_grams > 0 AND e.pieces > 0
	  AND e.storage_location_id = storage_locations.id
), updated_at = $2
WHERE id = $1
RETURNING current_usage_kg`, id, time.Now().UTC()).Scan(&usageKg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, fmt.Errorf("storage: refresh usage: %w", err)
	}
	return usageKg, nil
}

// Refresh recomputes one cached counter outside any transaction.
func (r *Repository) Refresh(ctx context.Context, id uuid.UUID) (float64, error) {
	return RefreshUsage(ctx, r.pool, id)
}

// ListIDs returns every location id, for the reconciliation job.
func (r *Repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM storage_locations`)
	if err != nil {
		return nil, fmt.Errorf("storage: list ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func queryLocations(ctx context.Context, q db.Querier, query string, args ...any) ([]Location, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var loc Location
		var status string
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.CapacityKg, &loc.CurrentUsageKg, &status, &loc.CreatedAt, &loc.UpdatedAt); err != nil {
			return nil, err
		}
		loc.Status = LocationStatus(status)
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func scanLocation(row pgx.Row) (Location, error) {
	var loc Location
	var status string
	err := row.Scan(&loc.ID, &loc.Name, &loc.CapacityKg, &loc.CurrentUsageKg, &status, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, shared.ErrNotFound
		}
		return Location{}, fmt.Errorf("storage: scan location: %w", err)
	}
	loc.Status = LocationStatus(status)
	return loc, nil
}
