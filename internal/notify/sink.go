package notify

import (
	"context"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

// Sink recibe alertas ya emitidas (presentacion, correo, logs).
type Sink interface {
	Deliver(ctx context.Context, alert domain.Alert) error
}

// SinkFunc adapta una funcion a Sink.
type SinkFunc func(ctx context.Context, alert domain.Alert) error

func (f SinkFunc) Deliver(ctx context.Context, alert domain.Alert) error {
	return f(ctx, alert)
}

// LogSink escribe cada alerta en el log.
func LogSink(logger *zap.Logger) Sink {
	return SinkFunc(func(_ context.Context, alert domain.Alert) error {
		logger.Info("alert",
			zap.String("kind", string(alert.Kind)),
			zap.String("title", alert.Title),
			zap.String("severity", string(alert.Severity)),
			zap.Int64("entity_id", alert.EntityID),
		)
		return nil
	})
}

// Mailer es lo que EmailSink necesita del paquete de correo.
type Mailer interface {
	SendAlert(ctx context.Context, toEmail string, alert domain.Alert) error
}

// EmailSink envia la alerta al correo del usuario actual, si se conoce.
func EmailSink(mailer Mailer, recipient func() string) Sink {
	return SinkFunc(func(ctx context.Context, alert domain.Alert) error {
		to := recipient()
		if to == "" {
			return nil
		}
		return mailer.SendAlert(ctx, to, alert)
	})
}

// Fanout reparte las alertas del dispatcher a todos los sinks. Un sink que
// falla no afecta a los demas.
type Fanout struct {
	logger *zap.Logger
	sinks  []Sink
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger, sinks: sinks}
}

func (f *Fanout) Run(ctx context.Context, alerts <-chan domain.Alert) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			for _, s := range f.sinks {
				if err := s.Deliver(ctx, alert); err != nil {
					f.logger.Warn("alert sink failed", zap.String("kind", string(alert.Kind)), zap.Error(err))
				}
			}
		}
	}
}
