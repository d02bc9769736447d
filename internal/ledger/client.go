package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("ledger base url not configured")
	ErrNoToken       = errors.New("ledger call requires an access token")
)

// Error es una respuesta no exitosa del Ledger Service.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger http error: status=%d", e.Status)
	}
	return fmt.Sprintf("ledger http error: status=%d: %s", e.Status, e.Message)
}

// Client llama a las operaciones administrativas del Ledger Service. Cada
// llamada viaja con el access token de la sesion actual.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ApproveWithdrawal marca el retiro como completado con el hash on-chain.
func (c *Client) ApproveWithdrawal(ctx context.Context, token string, withdrawalID int64, txHash string) error {
	req := ApproveWithdrawalRequest{WithdrawalID: withdrawalID, TxHash: strings.TrimSpace(txHash)}
	if err := req.Validate(); err != nil {
		return err
	}
	return c.post(ctx, token, "/approve_withdrawal", req)
}

// CreditDeposit acredita un deposito confirmado al usuario indicado.
func (c *Client) CreditDeposit(ctx context.Context, token string, req CreditDepositRequest) error {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return err
	}
	return c.post(ctx, token, "/credit_deposit", req)
}

func (c *Client) post(ctx context.Context, token, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(token) == "" {
		return ErrNoToken
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		_ = json.Unmarshal(respBody, &er)
		c.logger.Warn("ledger call failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", er.Error),
		)
		return &Error{Status: resp.StatusCode, Message: er.Error}
	}
	c.logger.Info("ledger call succeeded", zap.String("path", path))
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}
