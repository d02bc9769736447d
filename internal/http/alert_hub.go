package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/service"
)

const alertClientBuffer = 16

// AlertHub reparte alertas y snapshots de retiros a los clientes conectados
// por SSE. Un cliente lento pierde mensajes en lugar de frenar a los demas.
type AlertHub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[int]chan domain.Alert
	admins  map[int]chan service.WithdrawalsSnapshot
	latest  *service.WithdrawalsSnapshot
	nextID  int
}

func NewAlertHub(logger *zap.Logger) *AlertHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertHub{
		logger:  logger,
		clients: make(map[int]chan domain.Alert),
		admins:  make(map[int]chan service.WithdrawalsSnapshot),
	}
}

// Deliver cumple notify.Sink.
func (h *AlertHub) Deliver(_ context.Context, alert domain.Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		select {
		case ch <- alert:
		default:
			h.logger.Warn("alert stream client lagging, dropping alert", zap.Int("client", id), zap.String("kind", string(alert.Kind)))
		}
	}
	return nil
}

func (h *AlertHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishWithdrawals cumple service.WithdrawalsPublisher.
func (h *AlertHub) PublishWithdrawals(snapshot service.WithdrawalsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &snapshot
	for id, ch := range h.admins {
		select {
		case ch <- snapshot:
		default:
			h.logger.Warn("withdrawals stream client lagging, dropping snapshot", zap.Int("client", id))
		}
	}
}

// ClearWithdrawals olvida el ultimo snapshot y corta los streams de
// administracion abiertos.
func (h *AlertHub) ClearWithdrawals() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = nil
	for id, ch := range h.admins {
		delete(h.admins, id)
		close(ch)
	}
}

func (h *AlertHub) AdminClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.admins)
}

func (h *AlertHub) register() (int, <-chan domain.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan domain.Alert, alertClientBuffer)
	h.clients[id] = ch
	return id, ch
}

func (h *AlertHub) unregister(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// registerAdmin deja en el buffer el ultimo snapshot conocido, si hay.
func (h *AlertHub) registerAdmin() (int, <-chan service.WithdrawalsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan service.WithdrawalsSnapshot, alertClientBuffer)
	if h.latest != nil {
		ch <- *h.latest
	}
	h.admins[id] = ch
	return id, ch
}

func (h *AlertHub) unregisterAdmin(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.admins[id]; ok {
		delete(h.admins, id)
		close(ch)
	}
}

func startEventStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}

// Stream maneja GET /alerts/stream.
func (h *AlertHub) Stream(c *gin.Context) {
	id, alerts := h.register()
	defer h.unregister(id)
	startEventStream(c)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-alerts:
			c.SSEvent("alert", alert)
			c.Writer.Flush()
		}
	}
}

// WithdrawalsStream maneja GET /admin/withdrawals/stream. El stream termina
// cuando el usuario deja de ser administrador.
func (h *AlertHub) WithdrawalsStream(c *gin.Context) {
	id, snapshots := h.registerAdmin()
	defer h.unregisterAdmin(id)
	startEventStream(c)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			c.SSEvent("withdrawals", snapshot)
			c.Writer.Flush()
		}
	}
}
