package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-sync/internal/auth"
	"wallet-sync/internal/domain"
	"wallet-sync/internal/service"
)

// SessionService es lo que los endpoints de sesion necesitan del proveedor.
type SessionService interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context) error
}

// AuthHandler atiende inicio y cierre de sesion y la consulta del estado.
type AuthHandler struct {
	logger   *zap.Logger
	sessions SessionService
	states   StateReader
}

func NewAuthHandler(logger *zap.Logger, sessions SessionService, states StateReader) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{logger: logger, sessions: sessions, states: states}
}

// SignIn maneja POST /auth/sign-in.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid sign-in request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		case errors.Is(err, auth.ErrTooManyAttempts):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
			return
		}
		h.logger.Error("sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": session.AccessToken,
		"expires_at":   session.ExpiresAt,
		"user":         session.User(),
	})
}

// SignOut maneja POST /auth/sign-out.
func (h *AuthHandler) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		h.logger.Error("sign-out failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me maneja GET /me: devuelve la foto actual del bootstrapper, incluso en
// carga, siempre que pertenezca al usuario del token.
func (h *AuthHandler) Me(c *gin.Context) {
	if h.states == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "state not available"})
		return
	}
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	st := h.states.State()
	if !stateBelongsTo(st, session.UserID) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session no longer active"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// stateBelongsTo acepta el estado inicial en carga (aun sin usuario) y
// cualquier estado del mismo usuario.
func stateBelongsTo(st service.UserState, userID string) bool {
	if st.User == nil {
		return st.Loading
	}
	return st.UserID() == userID
}
