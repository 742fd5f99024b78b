package sorting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// Repository provides PostgreSQL backed persistence for sorting batches.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations batch completion performs inside one
// serializable transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Batch, error)
	Insert(ctx context.Context, b Batch) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status BatchStatus, completedAt *time.Time, readyCount int64) error
	HasCompletedForProcessingRecord(ctx context.Context, processingRecordID uuid.UUID) (bool, error)
	AppendEntry(ctx context.Context, e ledger.Entry) error
	LocationForUpdate(ctx context.Context, id uuid.UUID) (storage.Location, error)
	LiveWeightGramsAt(ctx context.Context, id uuid.UUID) (float64, error)
	RefreshUsage(ctx context.Context, id uuid.UUID) (float64, error)
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const batchColumns = `id, batch_number, processing_record_id, storage_location_id, size_distribution,
       piece_counts, ready_for_dispatch_count, status, completed_at, created_at, updated_at`

// Get fetches one batch.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM sorting_batches WHERE id = $1`, id))
}

// List returns batches newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Batch, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + batchColumns + ` FROM sorting_batches`
	args := []any{}
	where := []string{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where = append(where, fmt.Sprintf("storage_location_id = $%d", len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sorting: list: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

type txRepo struct {
	q db.Querier
}

func (r *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Batch, error) {
	return scanBatch(r.q.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM sorting_batches WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) Insert(ctx context.Context, b Batch) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO sorting_batches (id, batch_number, processing_record_id, storage_location_id, size_distribution,
       piece_counts, ready_for_dispatch_count, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		b.ID, b.BatchNumber, b.ProcessingRecordID, b.LocationID, b.SizeDistribution,
		b.PieceCounts, b.ReadyForDispatchCount, string(b.Status), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("sorting: insert: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status BatchStatus, completedAt *time.Time, readyCount int64) error {
	tag, err := r.q.Exec(ctx, `
UPDATE sorting_batches
SET status = $2, completed_at = $3, ready_for_dispatch_count = $4, updated_at = NOW()
WHERE id = $1`, id, string(status), completedAt, readyCount)
	if err != nil {
		return fmt.Errorf("sorting: update status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) HasCompletedForProcessingRecord(ctx context.Context, processingRecordID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM sorting_batches
  WHERE processing_record_id = $1 AND status = 'completed'
)`, processingRecordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sorting: completed check: %w", err)
	}
	return exists, nil
}

func (r *txRepo) AppendEntry(ctx context.Context, e ledger.Entry) error {
	return ledger.Append(ctx, r.q, e)
}

func (r *txRepo) LocationForUpdate(ctx context.Context, id uuid.UUID) (storage.Location, error) {
	return storage.GetForUpdate(ctx, r.q, id)
}

func (r *txRepo) LiveWeightGramsAt(ctx context.Context, id uuid.UUID) (float64, error) {
	return ledger.LiveWeightGramsAt(ctx, r.q, id)
}

func (r *txRepo) RefreshUsage(ctx context.Context, id uuid.UUID) (float64, error) {
	return storage.RefreshUsage(ctx, r.q, id)
}

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	var status string
	err := row.Scan(&b.ID, &b.BatchNumber, &b.ProcessingRecordID, &b.LocationID, &b.SizeDistribution,
		&b.PieceCounts, &b.ReadyForDispatchCount, &status, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, shared.ErrNotFound
	}
	if err != nil {
		return Batch{}, fmt.Errorf("sorting: scan batch: %w", err)
	}
	b.Status = BatchStatus(status)
	return b, nil
}
