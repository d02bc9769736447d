package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"wallet-sync/internal/realtime"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

// channelBinding mantiene los canales de un SubscriptionManager ligados a
// un usuario y reintenta con backoff los flujos que no pudieron abrirse.
// No es seguro para uso concurrente: lo maneja una sola goroutine.
type channelBinding struct {
	logger  *zap.Logger
	manager *realtime.SubscriptionManager
	streams []realtime.StreamSpec

	retryBase time.Duration
	retryMax  time.Duration

	userID  string
	handles []*realtime.SubscriptionHandle
	backoff time.Duration
}

func newChannelBinding(logger *zap.Logger, manager *realtime.SubscriptionManager, streams []realtime.StreamSpec) *channelBinding {
	return &channelBinding{
		logger:    logger,
		manager:   manager,
		streams:   streams,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
	}
}

// complete indica si todos los flujos del usuario actual tienen canal.
func (b *channelBinding) complete() bool {
	return b.userID == "" || len(b.handles) >= len(b.streams)
}

// bind liga los canales a userID ("" libera todo). Devuelve true cuando
// cambio el usuario ligado.
func (b *channelBinding) bind(ctx context.Context, userID string) bool {
	if userID == b.userID && b.complete() {
		return false
	}

	changed := userID != b.userID
	if changed {
		if len(b.handles) > 0 {
			b.manager.UnsubscribeAll(b.handles)
			b.handles = nil
		}
		b.userID = userID
		b.backoff = 0
	}
	if userID == "" {
		return changed
	}

	handles, err := b.manager.Subscribe(ctx, userID, b.streams)
	b.handles = handles
	if err != nil {
		b.logger.Error("realtime subscribe failed", zap.String("user_id", userID), zap.Error(err))
		return changed
	}
	b.logger.Info("realtime channels active", zap.String("user_id", userID), zap.Int("channels", len(handles)))
	return changed
}

// retry vuelve a intentar los flujos que faltan para el usuario actual.
func (b *channelBinding) retry(ctx context.Context) {
	b.bind(ctx, b.userID)
}

// schedule arma un reintento con backoff exponencial mientras falten
// canales por abrir.
func (b *channelBinding) schedule() <-chan time.Time {
	if b.complete() {
		b.backoff = 0
		return nil
	}
	if b.backoff == 0 {
		b.backoff = b.retryBase
	} else {
		b.backoff *= 2
	}
	if b.backoff > b.retryMax {
		b.backoff = b.retryMax
	}
	b.logger.Info("realtime channels missing, retrying",
		zap.String("user_id", b.userID),
		zap.Int("open", len(b.handles)),
		zap.Int("wanted", len(b.streams)),
		zap.Duration("in", b.backoff),
	)
	return time.After(b.backoff)
}
