package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/repository"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrTooManyAttempts       = errors.New("too many sign-in attempts")
	ErrBiometricUnavailable  = errors.New("biometric sign-in not available on this device")
	ErrProviderNotConfigured = errors.New("auth provider not configured")
	ErrSessionNotActive      = errors.New("session no longer active")
)

// Provider es el subsistema de autenticacion local: valida credenciales,
// persiste la sesion y avisa a los listeners cada vez que cambia.
type Provider struct {
	logger *zap.Logger
	tokens *TokenService
	store  SessionStore
	creds  repository.CredentialRepository
	limit  AttemptLimiter

	mu        sync.Mutex
	listeners map[int]func(*domain.Session)
	nextID    int
	// active es el token de la sesion vigente; "" si no hay sesion.
	active string
}

func NewProvider(logger *zap.Logger, tokens *TokenService, store SessionStore, creds repository.CredentialRepository) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &Provider{
		logger:    logger,
		tokens:    tokens,
		store:     store,
		creds:     creds,
		listeners: make(map[int]func(*domain.Session)),
	}
}

// WithAttemptLimiter activa el limite de intentos de SignIn.
func (p *Provider) WithAttemptLimiter(l AttemptLimiter) *Provider {
	p.limit = l
	return p
}

// CurrentSession restaura la sesion persistida. Un token vencido o invalido
// se descarta y se trata como ausencia de sesion.
func (p *Provider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	if p == nil || p.tokens == nil {
		return nil, ErrProviderNotConfigured
	}
	token, err := p.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if token == "" {
		return nil, nil
	}
	claims, err := p.tokens.Parse(token)
	if err != nil {
		p.logger.Info("discarding persisted session", zap.Error(err))
		if clearErr := p.store.Clear(ctx); clearErr != nil {
			p.logger.Warn("clear session failed", zap.Error(clearErr))
		}
		return nil, nil
	}
	p.setActive(token)
	return claims.Session(token), nil
}

// Authenticate valida un access token presentado por un cliente. Solo se
// acepta el token de la sesion vigente: tras SignOut o un nuevo SignIn los
// tokens anteriores dejan de valer.
func (p *Provider) Authenticate(token string) (*domain.Session, error) {
	if p == nil || p.tokens == nil {
		return nil, ErrProviderNotConfigured
	}
	claims, err := p.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	if token != active {
		return nil, ErrSessionNotActive
	}
	return claims.Session(token), nil
}

func (p *Provider) setActive(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = token
}

// OnSessionChange registra fn; la funcion devuelta lo desregistra.
func (p *Provider) OnSessionChange(fn func(*domain.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
		})
	}
}

// ListenerCount devuelve la cantidad de listeners registrados.
func (p *Provider) ListenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	if p == nil || p.tokens == nil || p.creds == nil {
		return nil, ErrProviderNotConfigured
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if p.limit != nil && !p.limit.Allow(ctx, email) {
		return nil, ErrTooManyAttempts
	}

	creds, err := p.creds.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}
	if creds.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := p.tokens.Issue(domain.AuthUser{ID: creds.UserID, Email: creds.Email})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if err := p.store.Save(ctx, token, time.Until(expiresAt)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	session := &domain.Session{
		UserID:      creds.UserID,
		Email:       creds.Email,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}
	p.setActive(token)
	p.logger.Info("signed in", zap.String("user_id", session.UserID))
	p.notify(session)
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	if p == nil {
		return ErrProviderNotConfigured
	}
	if err := p.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	p.setActive("")
	p.logger.Info("signed out")
	p.notify(nil)
	return nil
}

// BiometricSignIn no esta soportado en este proceso.
func (p *Provider) BiometricSignIn(_ context.Context) (*domain.Session, error) {
	return nil, ErrBiometricUnavailable
}

func (p *Provider) notify(session *domain.Session) {
	p.mu.Lock()
	fns := make([]func(*domain.Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		var s *domain.Session
		if session != nil {
			c := *session
			s = &c
		}
		fn(s)
	}
}
