package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/coldharbor-fpm/coldharbor/internal/platform/db"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Store functions take a db.Querier so the same queries run against the pool
// for advisory reads and against a pgx.Tx when the caller holds row locks.
// The completed-batch filter is applied on every read; the ledger table is
// never assumed to be pre-filtered.

const liveEntrySelect = `
SELECT e.id, e.seq, e.batch_id, b.batch_number, e.size_class, e.storage_location_id, l.name,
       e.pieces, e.weight_grams, e.created_at, e.transfer_id, e.transfer_source_storage_id
FROM stock_ledger e
JOIN sorting_batches b ON b.id = e.batch_id
JOIN storage_locations l ON l.id = e.storage_location_id
WHERE b.status = 'completed' AND e.weight_grams > 0 AND e.pieces > 0`

const fifoOrder = ` ORDER BY e.created_at ASC, e.seq ASC`

// forUpdate locks only the ledger rows; batch and location rows are read
// reference data here.
const forUpdate = ` FOR UPDATE OF e`

// Append inserts a new ledger entry.
func Append(ctx context.Context, q db.Querier, e Entry) error {
	_, err := q.Exec(ctx, `
INSERT INTO stock_ledger (id, seq, batch_id, size_class, storage_location_id, pieces, weight_grams, created_at, transfer_id, transfer_source_storage_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Seq, e.BatchID, int(e.SizeClass), e.LocationID, e.Pieces, e.WeightGrams, e.CreatedAt, e.TransferID, e.TransferSourceLocationID)
	if err != nil {
		return fmt.Errorf("ledger: append entry: %w", err)
	}
	return nil
}

// LiveBySize returns live entries for a size class across all locations in
// FIFO order. With lock set the rows are locked for update.
func LiveBySize(ctx context.Context, q db.Querier, size shared.SizeClass, lock bool) ([]LiveEntry, error) {
	query := liveEntrySelect + ` AND e.size_class = $1` + fifoOrder
	if lock {
		query += forUpdate
	}
	return queryLiveEntries(ctx, q, query, int(size))
}

// LiveByLocationSize returns live entries for one (location, size) pair in
// FIFO order.
func LiveByLocationSize(ctx context.Context, q db.Querier, locationID uuid.UUID, size shared.SizeClass, lock bool) ([]LiveEntry, error) {
	query := liveEntrySelect + ` AND e.storage_location_id = $1 AND e.size_class = $2` + fifoOrder
	if lock {
		query += forUpdate
	}
	return queryLiveEntries(ctx, q, query, locationID, int(size))
}

// LiveAll returns every live entry, FIFO ordered, for the aggregator.
func LiveAll(ctx context.Context, q db.Querier) ([]LiveEntry, error) {
	return queryLiveEntries(ctx, q, liveEntrySelect+fifoOrder)
}

// LiveAllLocked returns every live entry, FIFO ordered, with the ledger rows
// locked for update. Used by pooled any-size order confirmation.
func LiveAllLocked(ctx context.Context, q db.Querier) ([]LiveEntry, error) {
	return queryLiveEntries(ctx, q, liveEntrySelect+fifoOrder+forUpdate)
}

// LiveWeightGramsAt sums live weight at a storage location. This is the
// authoritative usage figure; the cached counter on the location row is
// advisory only.
func LiveWeightGramsAt(ctx context.Context, q db.Querier, locationID uuid.UUID) (float64, error) {
	var grams float64
	err := q.QueryRow(ctx, `
SELECT COALESCE(SUM(e.weight_grams), 0)
FROM stock_ledger e
JOIN sorting_batches b ON b.id = e.batch_id
WHERE b.status = 'completed' AND e.weight_grams > 0 AND e.pieces > 0
  AND e.storage_location_id = $1`, locationID).Scan(&grams)
	if err != nil {
		return 0, fmt.Errorf("ledger: live weight at %s: %w", locationID, err)
	}
	return grams, nil
}

// ApplyDeductions decrements entries in place. Each update re-checks the
// remaining balance in its WHERE clause; a miss means another flow consumed
// the stock between validate and write, and the whole set fails with
// shared.ErrConflict so the caller's transaction rolls back with no partial
// decrement.
func ApplyDeductions(ctx context.Context, q db.Querier, deductions []Deduction) error {
	for _, d := range deductions {
		if d.WeightGrams < 0 || d.Pieces < 0 {
			return shared.NewValidationError("ledger: negative deduction for entry %s", d.EntryID)
		}
		tag, err := q.Exec(ctx, `
UPDATE stock_ledger
SET weight_grams = weight_grams - $2, pieces = pieces - $3
WHERE id = $1 AND weight_grams >= $2 AND pieces >= $3`,
			d.EntryID, d.WeightGrams, d.Pieces)
		if err != nil {
			return fmt.Errorf("ledger: deduct entry %s: %w", d.EntryID, err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: ledger entry %s no longer holds the planned stock", shared.ErrConflict, d.EntryID)
		}
	}
	return nil
}

func queryLiveEntries(ctx context.Context, q db.Querier, query string, args ...any) ([]LiveEntry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query live entries: %w", err)
	}
	defer rows.Close()

	var entries []LiveEntry
	for rows.Next() {
		var e LiveEntry
		var size int
		if err := rows.Scan(&e.ID, &e.Seq, &e.BatchID, &e.BatchNumber, &size, &e.LocationID, &e.LocationName,
			&e.Pieces, &e.WeightGrams, &e.CreatedAt, &e.TransferID, &e.TransferSourceLocationID); err != nil {
			return nil, fmt.Errorf("ledger: scan live entry: %w", err)
		}
		e.SizeClass = shared.SizeClass(size)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
