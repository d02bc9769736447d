package notify

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

const defaultDedupeCapacity = 4096

// Dispatcher clasifica eventos de cambio en alertas. Lleva el ultimo
// estado visto por entidad y nunca emite dos alertas para el mismo par
// (entidad, estado nuevo), aunque el feed reentregue el evento.
type Dispatcher struct {
	logger  *zap.Logger
	haptics Haptics

	mu         sync.Mutex
	lastStatus map[string]string
	alerted    map[string]struct{}
	order      []string
	capacity   int

	out chan domain.Alert
}

func NewDispatcher(logger *zap.Logger, haptics Haptics, buffer int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if haptics == nil {
		haptics = NoHaptics()
	}
	if buffer <= 0 {
		buffer = 32
	}
	return &Dispatcher{
		logger:     logger,
		haptics:    haptics,
		lastStatus: make(map[string]string),
		alerted:    make(map[string]struct{}),
		capacity:   defaultDedupeCapacity,
		out:        make(chan domain.Alert, buffer),
	}
}

// Alerts entrega las alertas emitidas. El buffer es acotado: si nadie
// consume, se descarta la alerta pendiente mas vieja.
func (d *Dispatcher) Alerts() <-chan domain.Alert {
	return d.out
}

// Handle procesa un evento y devuelve la alerta emitida, si hubo.
func (d *Dispatcher) Handle(ev domain.ChangeEvent) (domain.Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entity := ev.EntityKey()
	status := ev.Record.Status
	previous, seen := d.lastStatus[entity]
	d.lastStatus[entity] = status
	d.trimStatuses(entity)
	if seen && previous == status {
		return domain.Alert{}, false
	}

	alert, ok := classify(ev)
	if !ok {
		return domain.Alert{}, false
	}

	dedupeKey := entity + ":" + status
	if _, dup := d.alerted[dedupeKey]; dup {
		return domain.Alert{}, false
	}
	d.remember(dedupeKey)

	d.emit(alert)
	d.pulse(alert)
	return alert, true
}

// Reset olvida el estado por entidad; se usa al cambiar de usuario.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastStatus = make(map[string]string)
	d.alerted = make(map[string]struct{})
	d.order = nil
}

// trimStatuses mantiene acotado el mapa de estados descartando una entrada
// cualquiera distinta de la recien escrita.
func (d *Dispatcher) trimStatuses(keep string) {
	if len(d.lastStatus) <= d.capacity {
		return
	}
	for k := range d.lastStatus {
		if k != keep {
			delete(d.lastStatus, k)
			return
		}
	}
}

func (d *Dispatcher) remember(key string) {
	d.alerted[key] = struct{}{}
	d.order = append(d.order, key)
	if len(d.order) > d.capacity {
		evicted := d.order[0]
		d.order = d.order[1:]
		delete(d.alerted, evicted)
	}
}

func (d *Dispatcher) emit(alert domain.Alert) {
	select {
	case d.out <- alert:
		return
	default:
	}
	select {
	case dropped := <-d.out:
		d.logger.Warn("alert buffer full, dropping oldest alert",
			zap.String("kind", string(dropped.Kind)),
			zap.Int64("entity_id", dropped.EntityID),
		)
	default:
	}
	d.out <- alert
}

func (d *Dispatcher) pulse(alert domain.Alert) {
	if !d.haptics.Available() {
		return
	}
	pattern := successPattern
	if alert.Severity == domain.SeverityError {
		pattern = errorPattern
	}
	if err := d.haptics.Vibrate(pattern); err != nil {
		d.logger.Debug("haptic feedback failed", zap.Error(err))
	}
}

// classify aplica la tabla (entidad, tipo, estado nuevo) -> alerta.
func classify(ev domain.ChangeEvent) (domain.Alert, bool) {
	rec := ev.Record
	base := domain.Alert{EntityID: rec.ID, Token: rec.Token, Amount: rec.Amount}

	switch ev.EntityType {
	case domain.EntityTransaction:
		if rec.Status != domain.StatusCompleted {
			return domain.Alert{}, false
		}
		switch rec.Type {
		case domain.TransactionTypeDeposit:
			base.Kind = domain.AlertDepositReceived
			base.Title = "Deposit Received"
			base.Description = fmt.Sprintf("%s %s has been credited to your account", rec.Amount, rec.Token)
			base.Severity = domain.SeveritySuccess
			return base, true
		case domain.TransactionTypeWithdraw:
			base.Kind = domain.AlertWithdrawalCompleted
			base.Title = "Withdrawal Completed"
			base.Description = fmt.Sprintf("%s %s has been sent", rec.Amount, rec.Token)
			base.Severity = domain.SeveritySuccess
			return base, true
		}
	case domain.EntityWithdrawal:
		switch rec.Status {
		case domain.StatusCompleted:
			base.Kind = domain.AlertWithdrawalApproved
			base.Title = "Withdrawal Approved"
			base.Description = fmt.Sprintf("Your %s withdrawal has been processed", rec.Token)
			base.Severity = domain.SeveritySuccess
			return base, true
		case domain.StatusRejected:
			base.Kind = domain.AlertWithdrawalRejected
			base.Title = "Withdrawal Rejected"
			base.Description = fmt.Sprintf("Your %s withdrawal request was rejected", rec.Token)
			base.Severity = domain.SeverityError
			return base, true
		}
	}
	return domain.Alert{}, false
}
