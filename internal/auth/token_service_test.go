package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wallet-sync/internal/domain"
)

func TestTokenService_IssueParse(t *testing.T) {
	svc := NewTokenService("secret", 15*time.Minute)
	token, expiresAt, err := svc.Issue(domain.AuthUser{ID: "u1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatalf("expected token and expiry")
	}

	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	session := claims.Session(token)
	if session.UserID != "u1" || session.AccessToken != token || !session.ExpiresAt.Equal(expiresAt.Truncate(time.Second)) {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService("secret", time.Minute)
	past := time.Now().UTC().Add(-2 * time.Hour)
	svc.now = func() time.Time { return past }
	token, _, err := svc.Issue(domain.AuthUser{ID: "u1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC() }

	if _, err := svc.Parse(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenService_Rejects(t *testing.T) {
	svc := NewTokenService("secret", time.Minute)
	other := NewTokenService("other", time.Minute)
	foreign, _, _ := other.Issue(domain.AuthUser{ID: "u1"})

	if _, err := svc.Parse(foreign); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid for foreign signature, got %v", err)
	}
	if _, err := svc.Parse(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid for empty token, got %v", err)
	}

	// Subject distinto de uid.
	claims := Claims{
		UserID: "u1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if _, err := svc.Parse(forged); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid for mismatched subject, got %v", err)
	}

	if _, _, err := NewTokenService("", time.Minute).Issue(domain.AuthUser{ID: "u1"}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid without secret, got %v", err)
	}
}
