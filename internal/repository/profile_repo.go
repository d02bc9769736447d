package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-sync/internal/domain"
)

// ProfileRepository define la persistencia de perfiles. La tabla tiene
// clave unica sobre id.
type ProfileRepository interface {
	Create(ctx context.Context, profile domain.Profile) error
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	List(ctx context.Context) ([]domain.Profile, error)
}

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

func (r *PgProfileRepository) Create(ctx context.Context, profile domain.Profile) error {
	const query = `
		INSERT INTO profiles (id, uid, email, created_at)
		VALUES ($1, $2, $3, $4)
	`
	var email interface{}
	if profile.Email != "" {
		email = profile.Email
	}
	_, err := r.pool.Exec(ctx, query,
		profile.ID,
		profile.UID,
		email,
		profile.CreatedAt,
	)
	return err
}

func (r *PgProfileRepository) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	const query = `
		SELECT id, uid, COALESCE(email, ''), created_at
		FROM profiles
		WHERE id = $1
	`
	var profile domain.Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.UID,
		&profile.Email,
		&profile.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, err
	}
	return profile, err
}

func (r *PgProfileRepository) List(ctx context.Context) ([]domain.Profile, error) {
	const query = `
		SELECT id, uid, COALESCE(email, ''), created_at
		FROM profiles
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.ID, &p.UID, &p.Email, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
