package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

func TestWalletViewBalances(t *testing.T) {
	view := NewWalletView(zap.NewNop(), stubBalanceRepo{balances: []domain.Balance{
		{UserID: "user-a", Token: "BTC", Amount: "0.5"},
		{UserID: "user-b", Token: "ETH", Amount: "2"},
		{UserID: "user-a", Token: "USDT", Amount: "100"},
	}})

	got, err := view.Balances(context.Background(), " user-a ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 || got[0].Token != "BTC" || got[1].Token != "USDT" {
		t.Fatalf("unexpected balances %+v", got)
	}

	got, err = view.Balances(context.Background(), "user-c")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %+v,%v", got, err)
	}

	got, err = view.Balances(context.Background(), "")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty list without user, got %+v,%v", got, err)
	}
}

func TestWalletViewBalancesErrors(t *testing.T) {
	boom := errors.New("db down")
	view := NewWalletView(zap.NewNop(), stubBalanceRepo{err: boom})
	if _, err := view.Balances(context.Background(), "user-a"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	var nilView *WalletView
	if _, err := nilView.Balances(context.Background(), "user-a"); !errors.Is(err, ErrWalletViewNotConfigured) {
		t.Fatalf("expected ErrWalletViewNotConfigured, got %v", err)
	}
}
