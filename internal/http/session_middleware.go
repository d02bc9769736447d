package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/service"
)

const authSessionKey = "auth_session"

// SessionAuthenticator valida el access token presentado por el cliente.
type SessionAuthenticator interface {
	Authenticate(token string) (*domain.Session, error)
}

// StateReader expone la foto actual del bootstrapper.
type StateReader interface {
	State() service.UserState
}

// SessionAuthMiddleware valida el bearer token y guarda la sesion en el contexto.
func SessionAuthMiddleware(sessions SessionAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		session, err := sessions.Authenticate(token)
		if err != nil || !session.Authenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(authSessionKey, session)
		c.Next()
	}
}

// GetSession obtiene la sesion autenticada desde el contexto.
func GetSession(c *gin.Context) (*domain.Session, bool) {
	val, ok := c.Get(authSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := val.(*domain.Session)
	return session, ok && session != nil
}

// AdminMiddleware deja pasar solo si el bootstrapper ya confirmo que el
// usuario de la sesion es administrador. Mientras carga, se rechaza.
func AdminMiddleware(states StateReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok || states == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		st := states.State()
		if st.Loading || st.UserID() != session.UserID || !st.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
