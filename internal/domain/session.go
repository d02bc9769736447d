package domain

import (
	"strings"
	"time"
)

// AuthUser es la identidad que entrega el subsistema de autenticacion.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session registra que un usuario esta autenticado. Una sesion nueva
// reemplaza por completo a la anterior.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticated indica si la sesion identifica a un usuario.
func (s *Session) Authenticated() bool {
	return s != nil && strings.TrimSpace(s.UserID) != ""
}

// Expired compara contra now; una sesion sin expiracion no vence.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) User() *AuthUser {
	if !s.Authenticated() {
		return nil
	}
	return &AuthUser{ID: s.UserID, Email: s.Email}
}
