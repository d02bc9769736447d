package domain

import "time"

const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
	TransactionTypeTransfer = "transfer"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// SupportedTokens lista los activos que acepta el Ledger Service.
var SupportedTokens = []string{"BTC", "ETH", "USDT", "USDC"}

type Transaction struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	TxHash    *string   `json:"tx_hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Withdrawal struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Token       string     `json:"token"`
	Amount      string     `json:"amount"`
	ToAddress   string     `json:"to_address"`
	Status      string     `json:"status"`
	TxHash      *string    `json:"tx_hash,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Profile     *Profile   `json:"profile,omitempty"`
}

type Balance struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserWithBalances es la vista administrativa de un perfil.
type UserWithBalances struct {
	Profile
	Balances []Balance `json:"balances"`
}
