package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Read-only
// repositories accept it so the same queries run inside and outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx executes fn inside a serializable transaction. Every flow that
// decrements the stock ledger runs its read-validate-write sequence through
// here so two concurrent confirmations cannot both take the same fish.
// Serialization failures surface as shared.ErrConflict.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return mapConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if conflict := mapConflict(err); errors.Is(conflict, shared.ErrConflict) {
			return conflict
		}
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// mapConflict translates postgres serialization and deadlock SQLSTATEs into
// the shared conflict sentinel.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", shared.ErrConflict, pgErr.Message)
		}
	}
	return err
}
