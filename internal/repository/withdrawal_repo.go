package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-sync/internal/domain"
)

type WithdrawalRepository interface {
	ListWithProfiles(ctx context.Context) ([]domain.Withdrawal, error)
}

type PgWithdrawalRepository struct {
	pool *pgxpool.Pool
}

func NewPgWithdrawalRepository(pool *pgxpool.Pool) *PgWithdrawalRepository {
	return &PgWithdrawalRepository{pool: pool}
}

// ListWithProfiles devuelve los retiros mas recientes primero, con el
// perfil del dueno cuando existe.
func (r *PgWithdrawalRepository) ListWithProfiles(ctx context.Context) ([]domain.Withdrawal, error) {
	const query = `
		SELECT w.id, w.user_id, w.token, w.amount::text, w.to_address, w.status,
		       w.tx_hash, w.requested_at, w.processed_at,
		       p.id, p.uid, p.email
		FROM withdrawals w
		LEFT JOIN profiles p ON p.id = w.user_id
		ORDER BY w.requested_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		var (
			w            domain.Withdrawal
			profileID    *string
			profileUID   *string
			profileEmail *string
		)
		if err := rows.Scan(
			&w.ID,
			&w.UserID,
			&w.Token,
			&w.Amount,
			&w.ToAddress,
			&w.Status,
			&w.TxHash,
			&w.RequestedAt,
			&w.ProcessedAt,
			&profileID,
			&profileUID,
			&profileEmail,
		); err != nil {
			return nil, err
		}
		if profileID != nil {
			p := &domain.Profile{ID: *profileID}
			if profileUID != nil {
				p.UID = *profileUID
			}
			if profileEmail != nil {
				p.Email = *profileEmail
			}
			w.Profile = p
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}
