package domain

import "strconv"

type EntityType string

const (
	EntityTransaction EntityType = "transaction"
	EntityWithdrawal  EntityType = "withdrawal"
)

type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// ChangeRecord agrupa las columnas que el feed entrega para transactions
// y withdrawals; los campos que no aplican quedan vacios.
type ChangeRecord struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
	Type   string `json:"type,omitempty"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Status string `json:"status"`
	TxHash string `json:"tx_hash,omitempty"`
}

// ChangeEvent es una fila insertada o actualizada que llega por el feed.
type ChangeEvent struct {
	EntityType EntityType   `json:"entity_type"`
	Operation  Operation    `json:"operation"`
	Record     ChangeRecord `json:"record"`
}

// EntityKey identifica el registro dentro de su tabla.
func (e ChangeEvent) EntityKey() string {
	return string(e.EntityType) + ":" + strconv.FormatInt(e.Record.ID, 10)
}

type AlertKind string

const (
	AlertDepositReceived     AlertKind = "deposit_received"
	AlertWithdrawalCompleted AlertKind = "withdrawal_completed"
	AlertWithdrawalApproved  AlertKind = "withdrawal_approved"
	AlertWithdrawalRejected  AlertKind = "withdrawal_rejected"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Alert es una notificacion efimera para el usuario; no se persiste.
type Alert struct {
	Kind        AlertKind `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	EntityID    int64     `json:"entity_id"`
	Token       string    `json:"token,omitempty"`
	Amount      string    `json:"amount,omitempty"`
}
