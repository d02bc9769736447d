package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wallet-sync/internal/domain"
)

// Filter restringe un canal a las filas cuya columna coincide con Value.
type Filter struct {
	Column string
	Value  string
}

func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

// StreamSpec declara un flujo logico de cambios por usuario.
type StreamSpec struct {
	Name       string
	Entity     domain.EntityType
	Table      string
	Operations []domain.Operation
	// AllUsers abre el canal sin filtro de usuario (vistas de administracion).
	AllUsers bool
}

// DefaultStreams son los flujos que alimentan las notificaciones del usuario.
var DefaultStreams = []StreamSpec{
	{
		Name:       "user_transactions",
		Entity:     domain.EntityTransaction,
		Table:      "transactions",
		Operations: []domain.Operation{domain.OperationInsert, domain.OperationUpdate},
	},
	{
		Name:       "user_withdrawals",
		Entity:     domain.EntityWithdrawal,
		Table:      "withdrawals",
		Operations: []domain.Operation{domain.OperationUpdate},
	},
}

// AdminStreams observan todos los retiros, de cualquier usuario.
var AdminStreams = []StreamSpec{
	{
		Name:       "admin_withdrawals",
		Entity:     domain.EntityWithdrawal,
		Table:      "withdrawals",
		Operations: []domain.Operation{domain.OperationInsert, domain.OperationUpdate},
		AllUsers:   true,
	},
}

// ChannelSpec es un StreamSpec ligado a un usuario concreto.
type ChannelSpec struct {
	StreamSpec
	Filter Filter
}

func channelSpecFor(userID string, stream StreamSpec) ChannelSpec {
	if stream.AllUsers {
		return ChannelSpec{StreamSpec: stream}
	}
	return ChannelSpec{
		StreamSpec: stream,
		Filter:     Filter{Column: "user_id", Value: userID},
	}
}

func (s ChannelSpec) allows(op domain.Operation) bool {
	if len(s.Operations) == 0 {
		return true
	}
	for _, o := range s.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Handler recibe eventos ya filtrados para el canal.
type Handler func(domain.ChangeEvent)

// Channel es una suscripcion abierta en el feed. Despues de Close no se
// invoca mas al handler.
type Channel interface {
	Close() error
}

// ChangeFeed abre canales filtrados sobre el feed externo de cambios.
type ChangeFeed interface {
	Open(ctx context.Context, spec ChannelSpec, handler Handler) (Channel, error)
}

var ErrMalformedPayload = errors.New("malformed change payload")

// wireChange es el payload publicado por los triggers de la base:
// {"table":"withdrawals","type":"UPDATE","record":{...}}.
type wireChange struct {
	Table  string     `json:"table"`
	Type   string     `json:"type"`
	Record wireRecord `json:"record"`
}

type wireRecord struct {
	ID     int64      `json:"id"`
	UserID string     `json:"user_id"`
	Type   string     `json:"type"`
	Token  string     `json:"token"`
	Amount flexString `json:"amount"`
	Status string     `json:"status"`
	TxHash *string    `json:"tx_hash"`
}

// flexString acepta columnas numeric serializadas como numero o texto.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// decodeChange interpreta un payload y lo filtra contra spec. Devuelve
// ok=false cuando el evento no pertenece al canal.
func decodeChange(payload []byte, spec ChannelSpec) (domain.ChangeEvent, bool, error) {
	var wc wireChange
	if err := json.Unmarshal(payload, &wc); err != nil {
		return domain.ChangeEvent{}, false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if wc.Table != "" && wc.Table != spec.Table {
		return domain.ChangeEvent{}, false, nil
	}
	op := domain.Operation(strings.ToLower(strings.TrimSpace(wc.Type)))
	if op != domain.OperationInsert && op != domain.OperationUpdate {
		return domain.ChangeEvent{}, false, nil
	}
	if !spec.allows(op) {
		return domain.ChangeEvent{}, false, nil
	}
	if spec.Filter.Value != "" && wc.Record.UserID != spec.Filter.Value {
		return domain.ChangeEvent{}, false, nil
	}
	rec := domain.ChangeRecord{
		ID:     wc.Record.ID,
		UserID: wc.Record.UserID,
		Type:   wc.Record.Type,
		Token:  wc.Record.Token,
		Amount: string(wc.Record.Amount),
		Status: wc.Record.Status,
	}
	if wc.Record.TxHash != nil {
		rec.TxHash = *wc.Record.TxHash
	}
	return domain.ChangeEvent{EntityType: spec.Entity, Operation: op, Record: rec}, true, nil
}
