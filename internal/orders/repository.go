package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// Repository provides PostgreSQL backed persistence for outlet orders and
// dispatch records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations confirmation and dispatch perform
// inside one serializable transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (OutletOrder, error)
	Insert(ctx context.Context, o OutletOrder) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	LockedEntriesBySize(ctx context.Context, size shared.SizeClass) ([]ledger.LiveEntry, error)
	LockedEntries(ctx context.Context) ([]ledger.LiveEntry, error)
	ApplyDeductions(ctx context.Context, deductions []ledger.Deduction) error
	InsertDispatch(ctx context.Context, d DispatchRecord) error
	DispatchForUpdate(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error)
	FinalizeDispatch(ctx context.Context, d DispatchRecord) error
	ReduceReadyForDispatch(ctx context.Context, batchID uuid.UUID, by int64) error
	RefreshUsage(ctx context.Context, locationID uuid.UUID) (float64, error)
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const orderColumns = `id, outlet_id, order_date, delivery_date, requested_sizes, size_quantities,
       requested_weight_kg, requested_grade, price_per_kg, total_value, status, created_at, updated_at`

const dispatchColumns = `id, order_id, destination, batch_ids, total_weight_kg, total_pieces,
       size_breakdown, lines, status, created_at, updated_at`

// Get fetches one order.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM outlet_orders WHERE id = $1`, id))
}

// List returns orders newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]OutletOrder, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + orderColumns + ` FROM outlet_orders`
	args := []any{}
	where := []string{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OutletID != nil {
		args = append(args, *filter.OutletID)
		where = append(where, fmt.Sprintf("outlet_id = $%d", len(args)))
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	defer rows.Close()

	var out []OutletOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Dispatch fetches the dispatch record for an order.
func (r *Repository) Dispatch(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error) {
	return scanDispatch(r.pool.QueryRow(ctx,
		`SELECT `+dispatchColumns+` FROM dispatch_records WHERE order_id = $1`, orderID))
}

type txRepo struct {
	q db.Querier
}

func (r *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (OutletOrder, error) {
	return scanOrder(r.q.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM outlet_orders WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepo) Insert(ctx context.Context, o OutletOrder) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO outlet_orders (id, outlet_id, order_date, delivery_date, requested_sizes, size_quantities,
       requested_weight_kg, requested_grade, price_per_kg, total_value, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		o.ID, o.OutletID, o.OrderDate, o.DeliveryDate, o.RequestedSizes, o.SizeQuantities,
		o.RequestedWeightKg, o.RequestedGrade, o.PricePerKg, o.TotalValue, string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("orders: insert: %w", err)
	}
	return nil
}

func (r *txRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE outlet_orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: update status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) LockedEntriesBySize(ctx context.Context, size shared.SizeClass) ([]ledger.LiveEntry, error) {
	return ledger.LiveBySize(ctx, r.q, size, true)
}

func (r *txRepo) LockedEntries(ctx context.Context) ([]ledger.LiveEntry, error) {
	return ledger.LiveAllLocked(ctx, r.q)
}

func (r *txRepo) ApplyDeductions(ctx context.Context, deductions []ledger.Deduction) error {
	return ledger.ApplyDeductions(ctx, r.q, deductions)
}

func (r *txRepo) InsertDispatch(ctx context.Context, d DispatchRecord) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO dispatch_records (id, order_id, destination, batch_ids, total_weight_kg, total_pieces,
       size_breakdown, lines, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		d.ID, d.OrderID, d.Destination, d.BatchIDs, d.TotalWeightKg, d.TotalPieces,
		d.SizeBreakdown, d.Lines, string(d.Status), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("orders: insert dispatch: %w", err)
	}
	return nil
}

func (r *txRepo) DispatchForUpdate(ctx context.Context, orderID uuid.UUID) (DispatchRecord, error) {
	return scanDispatch(r.q.QueryRow(ctx,
		`SELECT `+dispatchColumns+` FROM dispatch_records WHERE order_id = $1 FOR UPDATE`, orderID))
}

func (r *txRepo) FinalizeDispatch(ctx context.Context, d DispatchRecord) error {
	tag, err := r.q.Exec(ctx, `
UPDATE dispatch_records
SET destination = $2, batch_ids = $3, total_weight_kg = $4, total_pieces = $5,
    size_breakdown = $6, lines = $7, status = $8, updated_at = NOW()
WHERE id = $1`,
		d.ID, d.Destination, d.BatchIDs, d.TotalWeightKg, d.TotalPieces,
		d.SizeBreakdown, d.Lines, string(d.Status))
	if err != nil {
		return fmt.Errorf("orders: finalize dispatch: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) ReduceReadyForDispatch(ctx context.Context, batchID uuid.UUID, by int64) error {
	_, err := r.q.Exec(ctx, `
UPDATE sorting_batches
SET ready_for_dispatch_count = GREATEST(ready_for_dispatch_count - $2, 0)
WHERE id = $1`, batchID, by)
	if err != nil {
		return fmt.Errorf("orders: reduce ready for dispatch: %w", err)
	}
	return nil
}

func (r *txRepo) RefreshUsage(ctx context.Context, locationID uuid.UUID) (float64, error) {
	return storage.RefreshUsage(ctx, r.q, locationID)
}

func scanOrder(row pgx.Row) (OutletOrder, error) {
	var o OutletOrder
	var status string
	err := row.Scan(&o.ID, &o.OutletID, &o.OrderDate, &o.DeliveryDate, &o.RequestedSizes, &o.SizeQuantities,
		&o.RequestedWeightKg, &o.RequestedGrade, &o.PricePerKg, &o.TotalValue, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutletOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return OutletOrder{}, fmt.Errorf("orders: scan order: %w", err)
	}
	o.Status = Status(status)
	return o, nil
}

func scanDispatch(row pgx.Row) (DispatchRecord, error) {
	var d DispatchRecord
	var status string
	err := row.Scan(&d.ID, &d.OrderID, &d.Destination, &d.BatchIDs, &d.TotalWeightKg, &d.TotalPieces,
		&d.SizeBreakdown, &d.Lines, &status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DispatchRecord{}, shared.ErrNotFound
	}
	if err != nil {
		return DispatchRecord{}, fmt.Errorf("orders: scan dispatch: %w", err)
	}
	d.Status = DispatchStatus(status)
	return d, nil
}
