package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrSerialization reports a RepeatableRead conflict (SQLSTATE 40001).
	ErrSerialization = errors.New("platform/db: serialization failure")
	// ErrUniqueViolation reports a unique constraint violation (SQLSTATE 23505).
	ErrUniqueViolation = errors.New("platform/db: unique violation")
)

// WithTx runs fn inside a RepeatableRead transaction. Serialization failures
// and unique violations raised by fn or the commit are reported as
// ErrSerialization and ErrUniqueViolation, keeping the driver error in the chain.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", Classify(err))
	}

	return nil
}

// Classify tags err with ErrSerialization or ErrUniqueViolation when it carries
// the matching SQLSTATE. Other errors are returned unchanged.
func Classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001":
		return errors.Join(ErrSerialization, err)
	case "23505":
		return errors.Join(ErrUniqueViolation, err)
	}
	return err
}
