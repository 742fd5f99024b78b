package transfer

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

// Repository provides PostgreSQL backed persistence for transfers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations the service performs inside one
// serializable transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error)
	Insert(ctx context.Context, t Transfer) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedBy *string) error
	RecordMoved(ctx context.Context, id uuid.UUID, pieces int64) error
	HasPendingDuplicate(ctx context.Context, t Transfer) (bool, error)

	LockedSourceEntries(ctx context.Context, from uuid.UUID, size shared.SizeClass) ([]ledger.LiveEntry, error)
	ApplyDeductions(ctx context.Context, deductions []ledger.Deduction) error
	AppendEntry(ctx context.Context, e ledger.Entry) error
	LocationForUpdate(ctx context.Context, id uuid.UUID) (storage.Location, error)
	LiveWeightGramsAt(ctx context.Context, id uuid.UUID) (float64, error)
	RefreshUsage(ctx context.Context, id uuid.UUID) (float64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const transferColumns = `t.id, t.from_storage_id, t.to_storage_id, t.size_class, t.pieces, t.weight_kg,
       t.status, t.requested_by, t.approved_by, t.notes, t.created_at, t.updated_at`

const bareTransferColumns = `id, from_storage_id, to_storage_id, size_class, pieces, weight_kg,
       status, requested_by, approved_by, notes, created_at, updated_at`

const transferSelect = `
SELECT ` + transferColumns + `, f.name, d.name
FROM transfers t
JOIN storage_locations f ON f.id = t.from_storage_id
JOIN storage_locations d ON d.id = t.to_storage_id`

// Get fetches a transfer with location names.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return scanTransfer(r.pool.QueryRow(ctx, transferSelect+` WHERE t.id = $1`, id))
}

// List returns transfers newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := transferSelect
	args := []any{}
	where := []string{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		where = append(where, fmt.Sprintf("(t.from_storage_id = $%d OR t.to_storage_id = $%d)", len(args), len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY t.created_at DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transfer: list: %w", err)
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		t, err := scanTransferRow(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error) {
	// Lock the transfer row first, then load the display names.
	row := r.tx.QueryRow(ctx, `SELECT `+bareTransferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id)
	t, err := scanBareTransfer(row)
	if err != nil {
		return Transfer{}, err
	}
	err = r.tx.QueryRow(ctx, `SELECT f.name, d.name FROM storage_locations f, storage_locations d WHERE f.id = $1 AND d.id = $2`,
		t.FromLocationID, t.ToLocationID).Scan(&t.FromName, &t.ToName)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("transfer: load location names: %w", err)
	}
	return t, nil
}

func (r *txRepo) Insert(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `
INSERT INTO transfers (id, from_storage_id, to_storage_id, size_class, pieces, weight_kg, status, requested_by, approved_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		t.ID, t.FromLocationID, t.ToLocationID, int(t.SizeClass), t.Pieces, t.WeightKg,
		string(t.Status), t.RequestedBy, t.ApprovedBy, t.Notes, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("transfer: insert: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, approvedBy *string) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE transfers SET status = $2, approved_by = COALESCE($3, approved_by), updated_at = $4 WHERE id = $1`,
		id, string(status), approvedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transfer: update status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrNotFound
	}
	return nil
}

// RecordMoved writes the piece count the plan actually moved back onto the
// transfer, replacing the requester's estimate.
func (r *txRepo) RecordMoved(ctx context.Context, id uuid.UUID, pieces int64) error {
	tag, err := r.tx.Exec(ctx, `
UPDATE transfers SET pieces = $2, updated_at = $3 WHERE id = $1`, id, pieces, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("transfer: record moved: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrNotFound
	}
	return nil
}

// HasPendingDuplicate checks the explicit de-duplication guard: an identical
// pending request for the same movement tuple.
func (r *txRepo) HasPendingDuplicate(ctx context.Context, t Transfer) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM transfers
	WHERE status = 'pending'
	  AND from_storage_id = $1 AND to_storage_id = $2
	  AND size_class = $3 AND pieces = $4 AND weight_kg = $5
)`, t.FromLocationID, t.ToLocationID, int(t.SizeClass), t.Pieces, t.WeightKg).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("transfer: duplicate check: %w", err)
	}
	return exists, nil
}

func (r *txRepo) LockedSourceEntries(ctx context.Context, from uuid.UUID, size shared.SizeClass) ([]ledger.LiveEntry, error) {
	return ledger.LiveByLocationSize(ctx, r.tx, from, size, true)
}

func (r *txRepo) ApplyDeductions(ctx context.Context, deductions []ledger.Deduction) error {
	return ledger.ApplyDeductions(ctx, r.tx, deductions)
}

func (r *txRepo) AppendEntry(ctx context.Context, e ledger.Entry) error {
	return ledger.Append(ctx, r.tx, e)
}

func (r *txRepo) LocationForUpdate(ctx context.Context, id uuid.UUID) (storage.Location, error) {
	return storage.GetForUpdate(ctx, r.tx, id)
}

func (r *txRepo) LiveWeightGramsAt(ctx context.Context, id uuid.UUID) (float64, error) {
	return ledger.LiveWeightGramsAt(ctx, r.tx, id)
}

func (r *txRepo) RefreshUsage(ctx context.Context, id uuid.UUID) (float64, error) {
	return storage.RefreshUsage(ctx, r.tx, id)
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var size int
	var status string
	err := row.Scan(&t.ID, &t.FromLocationID, &t.ToLocationID, &size, &t.Pieces, &t.WeightKg,
		&status, &t.RequestedBy, &t.ApprovedBy, &t.Notes, &t.CreatedAt, &t.UpdatedAt, &t.FromName, &t.ToName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.ErrNotFound
		}
		return Transfer{}, fmt.Errorf("transfer: scan: %w", err)
	}
	t.SizeClass = shared.SizeClass(size)
	t.Status = Status(status)
	return t, nil
}

func scanTransferRow(rows pgx.Rows) (Transfer, error) {
	var t Transfer
	var size int
	var status string
	err := rows.Scan(&t.ID, &t.FromLocationID, &t.ToLocationID, &size, &t.Pieces, &t.WeightKg,
		&status, &t.RequestedBy, &t.ApprovedBy, &t.Notes, &t.CreatedAt, &t.UpdatedAt, &t.FromName, &t.ToName)
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer: scan row: %w", err)
	}
	t.SizeClass = shared.SizeClass(size)
	t.Status = Status(status)
	return t, nil
}

func scanBareTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var size int
	var status string
	err := row.Scan(&t.ID, &t.FromLocationID, &t.ToLocationID, &size, &t.Pieces, &t.WeightKg,
		&status, &t.RequestedBy, &t.ApprovedBy, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.ErrNotFound
		}
		return Transfer{}, fmt.Errorf("transfer: scan: %w", err)
	}
	t.SizeClass = shared.SizeClass(size)
	t.Status = Status(status)
	return t, nil
}
