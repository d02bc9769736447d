package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

type stubBalanceRepo struct {
	balances []domain.Balance
	err      error
}

func (s stubBalanceRepo) ListAll(context.Context) ([]domain.Balance, error) {
	return s.balances, s.err
}

func (s stubBalanceRepo) ListByUser(_ context.Context, userID string) ([]domain.Balance, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Balance
	for _, b := range s.balances {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubWithdrawalRepo struct {
	withdrawals []domain.Withdrawal
	err         error
}

func (s stubWithdrawalRepo) ListWithProfiles(context.Context) ([]domain.Withdrawal, error) {
	return s.withdrawals, s.err
}

func seededDirectory(t *testing.T) *AdminDirectory {
	t.Helper()
	profiles := newMockProfileRepo()
	for _, p := range []domain.Profile{
		{ID: "user-a", UID: "AB12CD34", Email: "alice@example.com"},
		{ID: "user-b", UID: "FF00FF00", Email: "bob@example.com"},
	} {
		if err := profiles.Create(context.Background(), p); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	balances := stubBalanceRepo{balances: []domain.Balance{
		{UserID: "user-a", Token: "BTC", Amount: "1.5"},
		{UserID: "user-a", Token: "ETH", Amount: "10"},
	}}
	withdrawals := stubWithdrawalRepo{withdrawals: []domain.Withdrawal{
		{ID: 2, UserID: "user-a", Status: domain.StatusPending},
		{ID: 1, UserID: "user-b", Status: domain.StatusCompleted},
	}}
	return NewAdminDirectory(zap.NewNop(), profiles, balances, withdrawals)
}

func TestAdminDirectoryListUsers(t *testing.T) {
	dir := seededDirectory(t)

	users, err := dir.ListUsers(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	for _, u := range users {
		switch u.ID {
		case "user-a":
			if len(u.Balances) != 2 {
				t.Fatalf("expected two balances for user-a, got %d", len(u.Balances))
			}
		case "user-b":
			if u.Balances == nil || len(u.Balances) != 0 {
				t.Fatalf("expected empty balances for user-b")
			}
		}
	}

	cases := map[string]string{
		"ab12":      "user-a",
		"BOB@":      "user-b",
		"  user-B ": "user-b",
	}
	for query, want := range cases {
		users, err := dir.ListUsers(context.Background(), query)
		if err != nil {
			t.Fatalf("query %q: %v", query, err)
		}
		if len(users) != 1 || users[0].ID != want {
			t.Fatalf("query %q: expected %s, got %+v", query, want, users)
		}
	}
}

func TestAdminDirectoryErrors(t *testing.T) {
	dir := seededDirectory(t)
	dir.balances = stubBalanceRepo{err: errors.New("db down")}
	if _, err := dir.ListUsers(context.Background(), ""); err == nil {
		t.Fatalf("expected balance error")
	}

	var nilDir *AdminDirectory
	if _, err := nilDir.ListWithdrawals(context.Background()); !errors.Is(err, ErrAdminDirectoryNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestAdminDirectoryWithdrawals(t *testing.T) {
	dir := seededDirectory(t)
	withdrawals, err := dir.ListWithdrawals(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(withdrawals) != 2 || withdrawals[0].ID != 2 {
		t.Fatalf("unexpected withdrawals %+v", withdrawals)
	}
	if PendingCount(withdrawals) != 1 {
		t.Fatalf("expected one pending withdrawal")
	}

	dir.withdrawals = stubWithdrawalRepo{}
	withdrawals, _ = dir.ListWithdrawals(context.Background())
	if withdrawals == nil {
		t.Fatalf("expected empty slice, not nil")
	}
}
