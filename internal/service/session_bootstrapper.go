package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

// AuthSource es el contrato que se consume del subsistema de autenticacion.
type AuthSource interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	OnSessionChange(fn func(*domain.Session)) (unsubscribe func())
}

type ProfileEnsurer interface {
	Ensure(ctx context.Context, userID, email string) (domain.Profile, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) bool
}

// UserState es la foto publicada por el bootstrapper. Los consumidores
// reciben copias; modificarlas no afecta al estado interno.
type UserState struct {
	User    *domain.AuthUser `json:"user"`
	Profile *domain.Profile  `json:"profile"`
	IsAdmin bool             `json:"is_admin"`
	Loading bool             `json:"loading"`
}

// UserID devuelve el id del usuario autenticado o "".
func (s UserState) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func (s UserState) clone() UserState {
	out := UserState{IsAdmin: s.IsAdmin, Loading: s.Loading}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

var initialUserState = UserState{Loading: true}

var ErrBootstrapperNotConfigured = errors.New("session bootstrapper not configured")

type bootstrapEventKind int

const (
	eventRestored bootstrapEventKind = iota
	eventChanged
	eventProvisioned
)

type bootstrapEvent struct {
	kind    bootstrapEventKind
	session *domain.Session
	err     error
	version uint64
	profile *domain.Profile
	isAdmin bool
}

// SessionBootstrapper concilia la sesion restaurada y los eventos de cambio
// de sesion en un unico flujo de UserState. Ambos productores alimentan un
// reductor secuencial; cada sesion aplicada incrementa una version y los
// resultados de aprovisionamiento de versiones viejas se descartan.
type SessionBootstrapper struct {
	logger   *zap.Logger
	auth     AuthSource
	profiles ProfileEnsurer
	admins   AdminChecker

	lifecycle   sync.Mutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
	workers     sync.WaitGroup

	mu          sync.Mutex
	state       UserState
	watchers    map[int]chan UserState
	nextWatcher int

	// Solo los toca la goroutine del reductor.
	version        uint64
	currentUser    *domain.AuthUser
	currentSession *domain.Session
	pushSeen       bool
}

func NewSessionBootstrapper(logger *zap.Logger, auth AuthSource, profiles ProfileEnsurer, admins AdminChecker) *SessionBootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionBootstrapper{
		logger:   logger,
		auth:     auth,
		profiles: profiles,
		admins:   admins,
		state:    initialUserState,
		watchers: make(map[int]chan UserState),
	}
}

// Start registra el listener de cambios de sesion y, en paralelo, intenta
// restaurar la sesion persistida. Llamarlo estando activo no hace nada.
func (b *SessionBootstrapper) Start(ctx context.Context) error {
	if b == nil || b.auth == nil || b.profiles == nil {
		return ErrBootstrapperNotConfigured
	}
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if b.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	events := make(chan bootstrapEvent, 16)
	done := make(chan struct{})

	b.version = 0
	b.currentUser = nil
	b.currentSession = nil
	b.pushSeen = false
	b.publish(initialUserState)

	// El listener se registra antes de restaurar para no perder una sesion
	// que llegue mientras la restauracion esta en vuelo.
	b.unsubscribe = b.auth.OnSessionChange(func(session *domain.Session) {
		post(runCtx, events, bootstrapEvent{kind: eventChanged, session: cloneSession(session)})
	})

	go b.reduce(runCtx, events, done)

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		session, err := b.auth.CurrentSession(runCtx)
		post(runCtx, events, bootstrapEvent{kind: eventRestored, session: cloneSession(session), err: err})
	}()

	b.running = true
	b.cancel = cancel
	b.done = done
	return nil
}

// Stop libera el listener y descarta el trabajo en vuelo. Es idempotente.
func (b *SessionBootstrapper) Stop() {
	if b == nil {
		return
	}
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if !b.running {
		return
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	b.cancel()
	<-b.done
	b.workers.Wait()
	b.running = false
}

// State devuelve una copia del estado actual.
func (b *SessionBootstrapper) State() UserState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// Subscribe entrega el estado actual y luego cada cambio. El canal guarda
// solo el ultimo valor: un consumidor lento puede saltarse estados
// intermedios pero nunca el mas reciente.
func (b *SessionBootstrapper) Subscribe() (<-chan UserState, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan UserState, 1)
	ch <- b.state.clone()
	id := b.nextWatcher
	b.nextWatcher++
	b.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if w, ok := b.watchers[id]; ok {
				delete(b.watchers, id)
				close(w)
			}
		})
	}
}

// WaitReady bloquea hasta que el estado deja de estar en carga.
func (b *SessionBootstrapper) WaitReady(ctx context.Context) (UserState, error) {
	states, cancel := b.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return b.State(), ctx.Err()
		case st, ok := <-states:
			if !ok {
				return b.State(), ErrBootstrapperNotConfigured
			}
			if !st.Loading {
				return st, nil
			}
		}
	}
}

func (b *SessionBootstrapper) reduce(ctx context.Context, events chan bootstrapEvent, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.kind {
			case eventRestored:
				if b.pushSeen {
					b.logger.Debug("discarding stale session restore")
					continue
				}
				if ev.err != nil {
					b.logger.Warn("session restore failed", zap.Error(ev.err))
				}
				b.applySession(ctx, events, ev.session)
			case eventChanged:
				b.pushSeen = true
				b.applySession(ctx, events, ev.session)
			case eventProvisioned:
				if ev.version != b.version || b.currentUser == nil {
					b.logger.Debug("discarding stale provisioning result", zap.Uint64("version", ev.version))
					continue
				}
				b.publish(UserState{
					User:    b.currentUser,
					Profile: ev.profile,
					IsAdmin: ev.isAdmin,
					Loading: false,
				})
			}
		}
	}
}

func (b *SessionBootstrapper) applySession(ctx context.Context, events chan<- bootstrapEvent, session *domain.Session) {
	if !session.Authenticated() {
		b.version++
		b.currentUser = nil
		b.currentSession = nil
		b.publish(UserState{})
		return
	}
	// La misma sesion puede llegar por restauracion y por el listener.
	if sameSession(b.currentSession, session) {
		return
	}

	b.version++
	version := b.version
	user := session.User()
	b.currentUser = user
	b.currentSession = session
	b.publish(UserState{User: user, Loading: true})

	b.workers.Add(1)
	go func() {
		defer b.workers.Done()
		post(ctx, events, b.provision(ctx, version, *user))
	}()
}

func (b *SessionBootstrapper) provision(ctx context.Context, version uint64, user domain.AuthUser) bootstrapEvent {
	ev := bootstrapEvent{kind: eventProvisioned, version: version}
	profile, err := b.profiles.Ensure(ctx, user.ID, user.Email)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Error("load user data failed", zap.String("user_id", user.ID), zap.Error(err))
		}
		ev.err = err
		return ev
	}
	ev.profile = &profile
	if b.admins != nil {
		ev.isAdmin = b.admins.IsAdmin(ctx, user.ID)
	}
	return ev
}

func (b *SessionBootstrapper) publish(state UserState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state.clone()
	for _, ch := range b.watchers {
		snapshot := b.state.clone()
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

func sameSession(a, b *domain.Session) bool {
	if a == nil || b == nil {
		return false
	}
	return a.UserID == b.UserID &&
		a.AccessToken == b.AccessToken &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

func post(ctx context.Context, events chan<- bootstrapEvent, ev bootstrapEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
