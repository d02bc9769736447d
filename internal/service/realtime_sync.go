package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/notify"
	"wallet-sync/internal/realtime"
)

// StateSource entrega el flujo de UserState (lo implementa SessionBootstrapper).
type StateSource interface {
	Subscribe() (<-chan UserState, func())
}

// RealtimeSync liga los canales en tiempo real al usuario que publica el
// bootstrapper y pasa cada cambio recibido al dispatcher de alertas.
type RealtimeSync struct {
	logger     *zap.Logger
	states     StateSource
	manager    *realtime.SubscriptionManager
	dispatcher *notify.Dispatcher
	binding    *channelBinding
}

func NewRealtimeSync(logger *zap.Logger, states StateSource, manager *realtime.SubscriptionManager, dispatcher *notify.Dispatcher, streams []realtime.StreamSpec) *RealtimeSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(streams) == 0 {
		streams = realtime.DefaultStreams
	}
	return &RealtimeSync{
		logger:     logger,
		states:     states,
		manager:    manager,
		dispatcher: dispatcher,
		binding:    newChannelBinding(logger, manager, streams),
	}
}

// Run bloquea hasta que ctx se cancela. Al salir cierra el manager.
func (s *RealtimeSync) Run(ctx context.Context) {
	states, cancel := s.states.Subscribe()
	defer cancel()
	defer s.manager.Close()

	events := s.manager.Events()
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			s.follow(ctx, st.UserID())
			retry = s.binding.schedule()
		case <-retry:
			s.binding.retry(ctx)
			retry = s.binding.schedule()
		case ev := <-events:
			s.handle(ev)
		}
	}
}

func (s *RealtimeSync) follow(ctx context.Context, userID string) {
	if s.binding.bind(ctx, userID) {
		s.dispatcher.Reset()
		if userID == "" {
			s.logger.Info("realtime sync idle, no user")
		}
	}
}

func (s *RealtimeSync) handle(ev domain.ChangeEvent) {
	userID := s.binding.userID
	// Un evento del usuario anterior puede quedar en el buffer tras el cambio.
	if userID == "" || (ev.Record.UserID != "" && ev.Record.UserID != userID) {
		return
	}
	if alert, ok := s.dispatcher.Handle(ev); ok {
		s.logger.Debug("alert emitted", zap.String("kind", string(alert.Kind)), zap.Int64("entity_id", alert.EntityID))
	}
}
