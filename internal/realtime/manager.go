package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

var (
	ErrManagerClosed     = errors.New("subscription manager closed")
	ErrInvalidSubscriber = errors.New("subscription user id required")
)

// SubscriptionHandle representa un canal abierto para (usuario, flujo).
// Solo el SubscriptionManager que lo creo puede cerrarlo.
type SubscriptionHandle struct {
	id      string
	userID  string
	stream  string
	channel Channel
	done    chan struct{}
	once    sync.Once
}

func (h *SubscriptionHandle) ID() string     { return h.id }
func (h *SubscriptionHandle) UserID() string { return h.userID }
func (h *SubscriptionHandle) Stream() string { return h.stream }

type subscriptionKey struct {
	userID string
	stream string
}

// SubscriptionManager mantiene a lo sumo un canal por (usuario, flujo) y
// esta ligado a un unico usuario a la vez: al cambiar de usuario cierra
// todos los canales del anterior antes de abrir los nuevos.
type SubscriptionManager struct {
	logger *zap.Logger
	feed   ChangeFeed

	// mu se mantiene durante apertura y cierre de canales para que las
	// operaciones de suscripcion queden serializadas.
	mu        sync.Mutex
	handles   map[subscriptionKey]*SubscriptionHandle
	boundUser string
	closed    bool

	events   chan domain.ChangeEvent
	closedCh chan struct{}
}

func NewSubscriptionManager(logger *zap.Logger, feed ChangeFeed, buffer int) *SubscriptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &SubscriptionManager{
		logger:   logger,
		feed:     feed,
		handles:  make(map[subscriptionKey]*SubscriptionHandle),
		events:   make(chan domain.ChangeEvent, buffer),
		closedCh: make(chan struct{}),
	}
}

// Events entrega los cambios de todos los canales activos.
func (m *SubscriptionManager) Events() <-chan domain.ChangeEvent {
	return m.events
}

// Done se cierra cuando el manager fue cerrado.
func (m *SubscriptionManager) Done() <-chan struct{} {
	return m.closedCh
}

// Subscribe abre un canal por flujo para userID. Suscribir de nuevo una
// clave activa devuelve el handle existente sin abrir otro canal.
func (m *SubscriptionManager) Subscribe(ctx context.Context, userID string, streams []StreamSpec) ([]*SubscriptionHandle, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidSubscriber
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	if m.boundUser != "" && m.boundUser != userID {
		m.logger.Info("switching realtime scope",
			zap.String("from_user", m.boundUser),
			zap.String("to_user", userID),
		)
		for key, h := range m.handles {
			m.closeHandleLocked(key, h)
		}
	}
	m.boundUser = userID

	out := make([]*SubscriptionHandle, 0, len(streams))
	for _, stream := range streams {
		key := subscriptionKey{userID: userID, stream: stream.Name}
		if h, ok := m.handles[key]; ok {
			out = append(out, h)
			continue
		}

		h := &SubscriptionHandle{
			id:     uuid.NewString(),
			userID: userID,
			stream: stream.Name,
			done:   make(chan struct{}),
		}
		ch, err := m.feed.Open(ctx, channelSpecFor(userID, stream), m.deliverTo(h))
		if err != nil {
			return out, fmt.Errorf("open channel %s: %w", stream.Name, err)
		}
		h.channel = ch
		m.handles[key] = h
		out = append(out, h)
		m.logger.Debug("channel opened", zap.String("user_id", userID), zap.String("stream", stream.Name))
	}
	return out, nil
}

// UnsubscribeAll cierra los handles indicados. Los handles que este
// manager no posee se ignoran.
func (m *SubscriptionManager) UnsubscribeAll(handles []*SubscriptionHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handles {
		if h == nil {
			continue
		}
		key := subscriptionKey{userID: h.userID, stream: h.stream}
		if owned, ok := m.handles[key]; ok && owned == h {
			m.closeHandleLocked(key, h)
		}
	}
	if len(m.handles) == 0 {
		m.boundUser = ""
	}
}

// Close libera todos los handles. Es idempotente.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for key, h := range m.handles {
		m.closeHandleLocked(key, h)
	}
	m.boundUser = ""
	m.closed = true
	close(m.closedCh)
}

// ActiveCount devuelve la cantidad de canales abiertos.
func (m *SubscriptionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// BoundUser devuelve el usuario al que estan ligados los canales activos.
func (m *SubscriptionManager) BoundUser() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boundUser
}

func (m *SubscriptionManager) closeHandleLocked(key subscriptionKey, h *SubscriptionHandle) {
	delete(m.handles, key)
	h.once.Do(func() {
		// Primero se corta la entrega para que un handler bloqueado en
		// Events no impida el cierre del canal.
		close(h.done)
		if h.channel != nil {
			if err := h.channel.Close(); err != nil {
				m.logger.Warn("channel close failed",
					zap.String("user_id", h.userID),
					zap.String("stream", h.stream),
					zap.Error(err),
				)
			}
		}
	})
}

func (m *SubscriptionManager) deliverTo(h *SubscriptionHandle) Handler {
	return func(ev domain.ChangeEvent) {
		select {
		case <-h.done:
			return
		default:
		}
		select {
		case m.events <- ev:
		case <-h.done:
		case <-m.closedCh:
		}
	}
}
