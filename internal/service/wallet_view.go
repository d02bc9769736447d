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

var ErrWalletViewNotConfigured = errors.New("wallet view not configured")

// WalletView arma las vistas del propio usuario.
type WalletView struct {
	logger   *zap.Logger
	balances repository.BalanceRepository
}

func NewWalletView(logger *zap.Logger, balances repository.BalanceRepository) *WalletView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletView{logger: logger, balances: balances}
}

// Balances devuelve los saldos de userID por token. Sin usuario devuelve
// una lista vacia sin consultar el store.
func (v *WalletView) Balances(ctx context.Context, userID string) ([]domain.Balance, error) {
	if v == nil || v.balances == nil {
		return nil, ErrWalletViewNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []domain.Balance{}, nil
	}
	balances, err := v.balances.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	if balances == nil {
		balances = []domain.Balance{}
	}
	return balances, nil
}
