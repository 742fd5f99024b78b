package stock

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/ledger"
	"github.com/coldharbor-fpm/coldharbor/internal/shared"
	"github.com/coldharbor-fpm/coldharbor/internal/storage"
)

// Repository reads the live ledger and registry for the aggregator and
// allocator. All reads are advisory snapshots; committing flows re-read
// inside their own transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Locations lists every storage location.
func (r *Repository) Locations(ctx context.Context) ([]storage.Location, error) {
	return storage.NewRepository(r.pool).List(ctx)
}

// LiveEntries returns all live ledger entries in FIFO order.
func (r *Repository) LiveEntries(ctx context.Context) ([]ledger.LiveEntry, error) {
	return ledger.LiveAll(ctx, r.pool)
}

// LiveBySize returns live entries for one size class in FIFO order.
func (r *Repository) LiveBySize(ctx context.Context, size shared.SizeClass) ([]ledger.LiveEntry, error) {
	return ledger.LiveBySize(ctx, r.pool, size, false)
}
