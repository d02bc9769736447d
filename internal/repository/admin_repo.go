package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminRepository responde si un usuario figura en la tabla admins.
type AdminRepository interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

type PgAdminRepository struct {
	pool *pgxpool.Pool
}

func NewPgAdminRepository(pool *pgxpool.Pool) *PgAdminRepository {
	return &PgAdminRepository{pool: pool}
}

func (r *PgAdminRepository) Exists(ctx context.Context, userID string) (bool, error) {
	const query = `
		SELECT user_id
		FROM admins
		WHERE user_id = $1
	`
	var id string
	err := r.pool.QueryRow(ctx, query, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
