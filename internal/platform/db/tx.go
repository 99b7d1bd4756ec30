package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTxConflict indicates the transaction lost a serialization or deadlock
// race and may be retried by the caller.
var ErrTxConflict = errors.New("platform/db: transaction conflict, retry")

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withIsolation(ctx, pool, pgx.RepeatableRead, fn)
}

// WithSerializableTx executes a function within a Serializable transaction.
// Ledger mutations run here so two concurrent deductions can never both
// commit against the same batch remainders.
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return withIsolation(ctx, pool, pgx.Serializable, fn)
}

func withIsolation(ctx context.Context, pool *pgxpool.Pool, level pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return MapConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		if mapped := MapConflict(err); errors.Is(mapped, ErrTxConflict) {
			return mapped
		}
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// MapConflict translates Postgres serialization and deadlock failures into
// ErrTxConflict so callers can distinguish contention from business errors.
func MapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Code)
		}
	}
	return err
}
