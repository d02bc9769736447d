package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reporta si err proviene de una clave duplicada.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// IsNotFound reporta si err es la ausencia de filas de pgx.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
