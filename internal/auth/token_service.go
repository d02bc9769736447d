package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wallet-sync/internal/domain"
)

const tokenIssuer = "wallet-sync"

var (
	ErrTokenInvalid = errors.New("jwt invalid")
	ErrTokenExpired = errors.New("jwt expired")
)

// Claims es el contenido del access token de sesion.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService emite y valida los access tokens de sesion (HS256).
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: tokenIssuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue firma un token para user y devuelve su expiracion.
func (s *TokenService) Issue(user domain.AuthUser) (string, time.Time, error) {
	if len(s.secret) == 0 || strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse valida firma, expiracion y emisor.
func (s *TokenService) Parse(tokenString string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrTokenInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return Claims{}, ErrTokenInvalid
	}
	if claims.Issuer != s.issuer {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

// Session arma la sesion de dominio a partir de un token valido.
func (c Claims) Session(token string) *domain.Session {
	s := &domain.Session{UserID: c.UserID, Email: c.Email, AccessToken: token}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return s
}
