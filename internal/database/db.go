package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories care about
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
	codeInvalidTextRepr      = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// maxTxAttempts bounds retries of a transaction that lost a serialization race
const maxTxAttempts = 3

// MapPostgresError translates driver errors into model errors. Anything it
// does not recognise is returned unchanged.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	switch pgErrorCode(err) {
	case codeUniqueViolation:
		return models.ErrConflict
	case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation:
		return models.ErrBadRequest
	case codeInvalidTextRepr:
		// a malformed id cannot name an existing row
		return models.ErrNotFound
	}

	return err
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isRetryable(err error) bool {
	code := pgErrorCode(err)
	return code == codeSerializationFailure || code == codeDeadlockDetected
}

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back on error or panic. A transaction aborted by a
// serialization failure or deadlock is retried from the start, so fn must
// not have side effects outside tx.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		db.logger.WarnContext(ctx, "retrying aborted transaction", "attempt", attempt, "error", err)
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	return fn(tx)
}
