package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/ledger"
	"wallet-sync/internal/service"
)

type AdminDirectory interface {
	ListUsers(ctx context.Context, query string) ([]domain.UserWithBalances, error)
	ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error)
}

type LedgerClient interface {
	ApproveWithdrawal(ctx context.Context, token string, withdrawalID int64, txHash string) error
	CreditDeposit(ctx context.Context, token string, req ledger.CreditDepositRequest) error
}

// AdminHandler expone el panel de administracion.
type AdminHandler struct {
	logger    *zap.Logger
	directory AdminDirectory
	ledger    LedgerClient
}

func NewAdminHandler(logger *zap.Logger, directory AdminDirectory, ledgerClient LedgerClient) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{logger: logger, directory: directory, ledger: ledgerClient}
}

// ListWithdrawals maneja GET /admin/withdrawals.
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	withdrawals, err := h.directory.ListWithdrawals(c.Request.Context())
	if err != nil {
		h.logger.Error("list withdrawals failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load withdrawals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"withdrawals":   withdrawals,
		"pending_count": service.PendingCount(withdrawals),
	})
}

// ApproveWithdrawal maneja POST /admin/withdrawals/:id/approve.
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid withdrawal id"})
		return
	}
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, _ := GetSession(c)
	if err := h.ledger.ApproveWithdrawal(c.Request.Context(), session.AccessToken, id, req.TxHash); err != nil {
		h.ledgerError(c, "approve withdrawal failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// CreditDeposit maneja POST /admin/deposits.
func (h *AdminHandler) CreditDeposit(c *gin.Context) {
	var req ledger.CreditDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, _ := GetSession(c)
	if err := h.ledger.CreditDeposit(c.Request.Context(), session.AccessToken, req); err != nil {
		h.ledgerError(c, "credit deposit failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListUsers maneja GET /admin/users?q=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.directory.ListUsers(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *AdminHandler) ledgerError(c *gin.Context, msg string, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verrs.Error()})
		return
	}
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		h.logger.Warn(msg, zap.Int("status", lerr.Status), zap.String("error", lerr.Message))
		status := lerr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		message := lerr.Message
		if message == "" {
			message = http.StatusText(lerr.Status)
		}
		c.JSON(status, gin.H{"error": message})
		return
	}
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "ledger unavailable"})
}
