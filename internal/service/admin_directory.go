package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/repository"
)

var ErrAdminDirectoryNotConfigured = errors.New("admin directory not configured")

// AdminDirectory arma las vistas de solo lectura del panel de administracion.
type AdminDirectory struct {
	logger      *zap.Logger
	profiles    repository.ProfileRepository
	balances    repository.BalanceRepository
	withdrawals repository.WithdrawalRepository
}

func NewAdminDirectory(logger *zap.Logger, profiles repository.ProfileRepository, balances repository.BalanceRepository, withdrawals repository.WithdrawalRepository) *AdminDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminDirectory{
		logger:      logger,
		profiles:    profiles,
		balances:    balances,
		withdrawals: withdrawals,
	}
}

// ListUsers devuelve los perfiles con sus saldos. query filtra sin
// distinguir mayusculas por uid, email o id.
func (d *AdminDirectory) ListUsers(ctx context.Context, query string) ([]domain.UserWithBalances, error) {
	if d == nil || d.profiles == nil || d.balances == nil {
		return nil, ErrAdminDirectoryNotConfigured
	}
	profiles, err := d.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	balances, err := d.balances.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	byUser := make(map[string][]domain.Balance)
	for _, b := range balances {
		byUser[b.UserID] = append(byUser[b.UserID], b)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	users := make([]domain.UserWithBalances, 0, len(profiles))
	for _, p := range profiles {
		if needle != "" && !matchesProfile(p, needle) {
			continue
		}
		userBalances := byUser[p.ID]
		if userBalances == nil {
			userBalances = []domain.Balance{}
		}
		users = append(users, domain.UserWithBalances{Profile: p, Balances: userBalances})
	}
	return users, nil
}

func matchesProfile(p domain.Profile, needle string) bool {
	return strings.Contains(strings.ToLower(p.UID), needle) ||
		strings.Contains(strings.ToLower(p.Email), needle) ||
		strings.Contains(strings.ToLower(p.ID), needle)
}

// ListWithdrawals devuelve los retiros mas recientes primero.
func (d *AdminDirectory) ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error) {
	if d == nil || d.withdrawals == nil {
		return nil, ErrAdminDirectoryNotConfigured
	}
	withdrawals, err := d.withdrawals.ListWithProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	if withdrawals == nil {
		withdrawals = []domain.Withdrawal{}
	}
	return withdrawals, nil
}

// PendingCount cuenta los retiros pendientes de aprobacion.
func PendingCount(withdrawals []domain.Withdrawal) int {
	n := 0
	for _, w := range withdrawals {
		if w.Status == domain.StatusPending {
			n++
		}
	}
	return n
}
