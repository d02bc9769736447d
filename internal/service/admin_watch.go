package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/realtime"
)

// WithdrawalsSnapshot es la vista del panel de retiros que se empuja a los
// administradores conectados.
type WithdrawalsSnapshot struct {
	Withdrawals  []domain.Withdrawal `json:"withdrawals"`
	PendingCount int                 `json:"pending_count"`
}

type WithdrawalLister interface {
	ListWithdrawals(ctx context.Context) ([]domain.Withdrawal, error)
}

// WithdrawalsPublisher recibe cada snapshot nuevo. ClearWithdrawals se
// invoca cuando deja de haber un administrador activo.
type WithdrawalsPublisher interface {
	PublishWithdrawals(snapshot WithdrawalsSnapshot)
	ClearWithdrawals()
}

// AdminWatch mantiene abierto el flujo admin_withdrawals mientras el usuario
// actual sea administrador y recarga la lista de retiros ante cada cambio.
type AdminWatch struct {
	logger    *zap.Logger
	states    StateSource
	manager   *realtime.SubscriptionManager
	lister    WithdrawalLister
	publisher WithdrawalsPublisher
	binding   *channelBinding
}

func NewAdminWatch(logger *zap.Logger, states StateSource, manager *realtime.SubscriptionManager, lister WithdrawalLister, publisher WithdrawalsPublisher) *AdminWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminWatch{
		logger:    logger,
		states:    states,
		manager:   manager,
		lister:    lister,
		publisher: publisher,
		binding:   newChannelBinding(logger.With(zap.String("scope", "admin")), manager, realtime.AdminStreams),
	}
}

// Run bloquea hasta que ctx se cancela. Al salir cierra el manager.
func (w *AdminWatch) Run(ctx context.Context) {
	states, cancel := w.states.Subscribe()
	defer cancel()
	defer w.manager.Close()

	events := w.manager.Events()
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			w.follow(ctx, st)
			retry = w.binding.schedule()
		case <-retry:
			w.binding.retry(ctx)
			retry = w.binding.schedule()
		case <-events:
			if w.binding.userID == "" {
				continue
			}
			w.drain(events)
			w.refresh(ctx)
		}
	}
}

func (w *AdminWatch) follow(ctx context.Context, st UserState) {
	target := ""
	if st.IsAdmin && !st.Loading {
		target = st.UserID()
	}
	if !w.binding.bind(ctx, target) {
		return
	}
	if target == "" {
		w.publisher.ClearWithdrawals()
		return
	}
	w.refresh(ctx)
}

// drain descarta los eventos ya encolados: una sola recarga los cubre.
func (w *AdminWatch) drain(events <-chan domain.ChangeEvent) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

func (w *AdminWatch) refresh(ctx context.Context) {
	withdrawals, err := w.lister.ListWithdrawals(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("reload withdrawals failed", zap.Error(err))
		}
		return
	}
	w.publisher.PublishWithdrawals(WithdrawalsSnapshot{
		Withdrawals:  withdrawals,
		PendingCount: PendingCount(withdrawals),
	})
}
