package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credentials es lo minimo que el inicio de sesion local necesita de users.
type Credentials struct {
	UserID       string
	Email        string
	PasswordHash string
}

// CredentialRepository define la lectura de credenciales por email.
type CredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (Credentials, error)
}

// PgCredentialRepository implementa CredentialRepository usando pgxpool.
type PgCredentialRepository struct {
	pool *pgxpool.Pool
}

func NewPgCredentialRepository(pool *pgxpool.Pool) *PgCredentialRepository {
	return &PgCredentialRepository{pool: pool}
}

func (r *PgCredentialRepository) GetByEmail(ctx context.Context, email string) (Credentials, error) {
	const query = `
		SELECT id, email, COALESCE(password_hash, '')
		FROM users
		WHERE lower(email) = lower($1)
	`
	var c Credentials
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&c.UserID,
		&c.Email,
		&c.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credentials{}, err
	}
	return c, err
}
