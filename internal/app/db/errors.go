package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"roomchat/internal/app/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// translate maps driver errors onto the store sentinels and wraps the rest with op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return store.ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	case pgCode(err) == pgForeignKeyViolation, pgCode(err) == pgInvalidTextRepr:
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}

	return fmt.Errorf("%s: %w", op, err)
}
