package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

type BalanceReader interface {
	Balances(ctx context.Context, userID string) ([]domain.Balance, error)
}

// WalletHandler atiende las vistas del propio usuario.
type WalletHandler struct {
	logger   *zap.Logger
	balances BalanceReader
}

func NewWalletHandler(logger *zap.Logger, balances BalanceReader) *WalletHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletHandler{logger: logger, balances: balances}
}

// Balances maneja GET /me/balances.
func (h *WalletHandler) Balances(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	balances, err := h.balances.Balances(c.Request.Context(), session.UserID)
	if err != nil {
		h.logger.Error("list balances failed", zap.String("user_id", session.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load balances"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}
