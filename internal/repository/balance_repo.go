package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-sync/internal/domain"
)

type BalanceRepository interface {
	ListAll(ctx context.Context) ([]domain.Balance, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Balance, error)
}

type PgBalanceRepository struct {
	pool *pgxpool.Pool
}

func NewPgBalanceRepository(pool *pgxpool.Pool) *PgBalanceRepository {
	return &PgBalanceRepository{pool: pool}
}

func (r *PgBalanceRepository) ListAll(ctx context.Context) ([]domain.Balance, error) {
	const query = `
		SELECT user_id, token, amount::text, updated_at
		FROM balances
		ORDER BY user_id, token
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanBalances(rows)
}

func (r *PgBalanceRepository) ListByUser(ctx context.Context, userID string) ([]domain.Balance, error) {
	const query = `
		SELECT user_id, token, amount::text, updated_at
		FROM balances
		WHERE user_id = $1
		ORDER BY token
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanBalances(rows)
}

func scanBalances(rows pgx.Rows) ([]domain.Balance, error) {
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.UserID, &b.Token, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
