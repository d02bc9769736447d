package email

import (
	"context"
	"errors"

	"wallet-sync/internal/domain"
)

// Sender define la interfaz para envio de avisos por correo.
type Sender interface {
	SendAlert(ctx context.Context, toEmail string, alert domain.Alert) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendAlert(_ context.Context, _ string, _ domain.Alert) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
