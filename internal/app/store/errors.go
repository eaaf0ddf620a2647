package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsCheckViolation checks if the error is a PostgreSQL check constraint violation (code 23514),
// raised when a level outside the hierarchy reaches the user_grants table.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23514"
	}
	return false
}

// wrapErr annotates a database error with the operation and, when present, the PostgreSQL error code.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (pg %s): %w", op, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
