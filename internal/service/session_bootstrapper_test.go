package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

type fakeAuthSource struct {
	mu            sync.Mutex
	listeners     map[int]func(*domain.Session)
	next          int
	registrations int
	restore       func(ctx context.Context) (*domain.Session, error)
}

func newFakeAuthSource(restore func(ctx context.Context) (*domain.Session, error)) *fakeAuthSource {
	if restore == nil {
		restore = func(context.Context) (*domain.Session, error) { return nil, nil }
	}
	return &fakeAuthSource{listeners: make(map[int]func(*domain.Session)), restore: restore}
}

func (f *fakeAuthSource) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return f.restore(ctx)
}

func (f *fakeAuthSource) OnSessionChange(fn func(*domain.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.registrations++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeAuthSource) emit(s *domain.Session) {
	f.mu.Lock()
	fns := make([]func(*domain.Session), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeAuthSource) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type fakeEnsurer struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	errs     map[string]error
	calls    map[string]int
	finished chan string
}

func newFakeEnsurer() *fakeEnsurer {
	return &fakeEnsurer{
		gates:    make(map[string]chan struct{}),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
		finished: make(chan string, 16),
	}
}

func (f *fakeEnsurer) Ensure(ctx context.Context, userID, email string) (domain.Profile, error) {
	f.mu.Lock()
	f.calls[userID]++
	gate := f.gates[userID]
	err := f.errs[userID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Profile{}, ctx.Err()
		}
	}
	defer func() {
		select {
		case f.finished <- userID:
		default:
		}
	}()
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{ID: userID, UID: "UID-" + userID, Email: email}, nil
}

func (f *fakeEnsurer) callCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[userID]
}

type fakeAdminChecker map[string]bool

func (f fakeAdminChecker) IsAdmin(_ context.Context, userID string) bool {
	return f[userID]
}

func session(userID string) *domain.Session {
	return &domain.Session{UserID: userID, Email: userID + "@example.com"}
}

func tokenSession(userID, token string) *domain.Session {
	s := session(userID)
	s.AccessToken = token
	return s
}

type mutableAdminChecker struct {
	mu     sync.Mutex
	admins map[string]bool
}

func (m *mutableAdminChecker) IsAdmin(_ context.Context, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admins[userID]
}

func (m *mutableAdminChecker) set(userID string, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[userID] = admin
}

func waitForState(t *testing.T, b *SessionBootstrapper, cond func(UserState) bool) UserState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := b.State()
		if cond(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state condition not reached, last state: %+v", b.State())
	return UserState{}
}

func readyFor(userID string) func(UserState) bool {
	return func(st UserState) bool {
		return st.UserID() == userID && !st.Loading
	}
}

func signedOut(st UserState) bool {
	return st.User == nil && st.Profile == nil && !st.IsAdmin && !st.Loading
}

func startBootstrapper(t *testing.T, auth *fakeAuthSource, ensurer *fakeEnsurer, admins AdminChecker) *SessionBootstrapper {
	t.Helper()
	b := NewSessionBootstrapper(zap.NewNop(), auth, ensurer, admins)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func TestSessionBootstrapper_InitialState(t *testing.T) {
	b := NewSessionBootstrapper(zap.NewNop(), newFakeAuthSource(nil), newFakeEnsurer(), fakeAdminChecker{})
	st := b.State()
	if st.User != nil || st.Profile != nil || st.IsAdmin || !st.Loading {
		t.Fatalf("expected initial {nil,nil,false,true}, got %+v", st)
	}
}

func TestSessionBootstrapper_RestoresPersistedSession(t *testing.T) {
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return session("u1"), nil
	})
	b := startBootstrapper(t, auth, newFakeEnsurer(), fakeAdminChecker{"u1": true})

	st := waitForState(t, b, readyFor("u1"))
	if st.Profile == nil || st.Profile.ID != "u1" || st.Profile.UID != "UID-u1" {
		t.Fatalf("expected profile for u1, got %+v", st.Profile)
	}
	if !st.IsAdmin {
		t.Fatalf("expected admin flag for u1")
	}
	if st.User.Email != "u1@example.com" {
		t.Fatalf("unexpected email %q", st.User.Email)
	}
}

func TestSessionBootstrapper_NoSessionPublishesSignedOut(t *testing.T) {
	b := startBootstrapper(t, newFakeAuthSource(nil), newFakeEnsurer(), fakeAdminChecker{})
	waitForState(t, b, signedOut)
}

func TestSessionBootstrapper_RestoreErrorDegradesToSignedOut(t *testing.T) {
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return nil, errors.New("storage unavailable")
	})
	b := startBootstrapper(t, auth, newFakeEnsurer(), fakeAdminChecker{})
	waitForState(t, b, signedOut)
}

func TestSessionBootstrapper_SignInAfterActivation(t *testing.T) {
	auth := newFakeAuthSource(nil)
	b := startBootstrapper(t, auth, newFakeEnsurer(), fakeAdminChecker{})
	waitForState(t, b, signedOut)

	auth.emit(session("u1"))
	st := waitForState(t, b, readyFor("u1"))
	if st.Profile == nil || st.IsAdmin {
		t.Fatalf("expected non-admin profile state, got %+v", st)
	}

	auth.emit(nil)
	waitForState(t, b, signedOut)
}

func TestSessionBootstrapper_ProvisioningFailureKeepsUser(t *testing.T) {
	ensurer := newFakeEnsurer()
	ensurer.errs["u1"] = errors.New("permission denied")
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return session("u1"), nil
	})
	b := startBootstrapper(t, auth, ensurer, fakeAdminChecker{"u1": true})

	st := waitForState(t, b, readyFor("u1"))
	if st.Profile != nil || st.IsAdmin {
		t.Fatalf("expected degraded state {user,nil,false,false}, got %+v", st)
	}
}

func TestSessionBootstrapper_LastApplicableEventWins(t *testing.T) {
	ensurer := newFakeEnsurer()
	gateA := make(chan struct{})
	ensurer.gates["a"] = gateA
	auth := newFakeAuthSource(nil)
	b := startBootstrapper(t, auth, ensurer, fakeAdminChecker{"a": true})
	waitForState(t, b, signedOut)

	auth.emit(session("a"))
	waitForState(t, b, func(st UserState) bool { return st.UserID() == "a" && st.Loading })

	auth.emit(session("b"))
	waitForState(t, b, readyFor("b"))

	close(gateA)
	select {
	case id := <-ensurer.finished:
		for id != "a" {
			id = <-ensurer.finished
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("provisioning for a never finished")
	}
	time.Sleep(50 * time.Millisecond)

	st := b.State()
	if st.UserID() != "b" || st.Profile == nil || st.Profile.ID != "b" {
		t.Fatalf("expected state for b, got %+v", st)
	}
	if st.IsAdmin {
		t.Fatalf("stale admin flag from a leaked into b")
	}
}

func TestSessionBootstrapper_StaleRestoreDiscarded(t *testing.T) {
	release := make(chan struct{})
	auth := newFakeAuthSource(func(ctx context.Context) (*domain.Session, error) {
		select {
		case <-release:
			return session("old"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	ensurer := newFakeEnsurer()
	b := startBootstrapper(t, auth, ensurer, fakeAdminChecker{})

	auth.emit(session("new"))
	waitForState(t, b, readyFor("new"))

	close(release)
	time.Sleep(50 * time.Millisecond)

	if st := b.State(); st.UserID() != "new" {
		t.Fatalf("stale restore overwrote state: %+v", st)
	}
	if n := ensurer.callCount("old"); n != 0 {
		t.Fatalf("expected no provisioning for stale session, got %d", n)
	}
}

func TestSessionBootstrapper_DuplicateSessionIsIdempotent(t *testing.T) {
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return tokenSession("u1", "tok-1"), nil
	})
	ensurer := newFakeEnsurer()
	b := startBootstrapper(t, auth, ensurer, fakeAdminChecker{})
	waitForState(t, b, readyFor("u1"))

	auth.emit(tokenSession("u1", "tok-1"))
	auth.emit(tokenSession("u1", "tok-1"))
	time.Sleep(30 * time.Millisecond)

	if n := ensurer.callCount("u1"); n != 1 {
		t.Fatalf("expected one provisioning call, got %d", n)
	}
}

func TestSessionBootstrapper_NewSessionRecomputesAdminFlag(t *testing.T) {
	admins := &mutableAdminChecker{admins: map[string]bool{"u1": true}}
	auth := newFakeAuthSource(nil)
	ensurer := newFakeEnsurer()
	b := startBootstrapper(t, auth, ensurer, admins)
	waitForState(t, b, signedOut)

	auth.emit(tokenSession("u1", "tok-1"))
	st := waitForState(t, b, readyFor("u1"))
	if !st.IsAdmin {
		t.Fatalf("expected admin flag on first session")
	}

	admins.set("u1", false)
	auth.emit(tokenSession("u1", "tok-2"))
	waitForState(t, b, func(st UserState) bool {
		return st.UserID() == "u1" && !st.Loading && !st.IsAdmin
	})
	if n := ensurer.callCount("u1"); n != 2 {
		t.Fatalf("expected provisioning per session, got %d", n)
	}
}

func TestSessionBootstrapper_NewSessionRetriesFailedProfile(t *testing.T) {
	ensurer := newFakeEnsurer()
	ensurer.errs["u1"] = errors.New("network unreachable")
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return tokenSession("u1", "tok-1"), nil
	})
	b := startBootstrapper(t, auth, ensurer, fakeAdminChecker{})
	st := waitForState(t, b, readyFor("u1"))
	if st.Profile != nil {
		t.Fatalf("expected nil profile after failure, got %+v", st.Profile)
	}

	ensurer.mu.Lock()
	delete(ensurer.errs, "u1")
	ensurer.mu.Unlock()

	auth.emit(tokenSession("u1", "tok-2"))
	st = waitForState(t, b, func(st UserState) bool {
		return st.UserID() == "u1" && !st.Loading && st.Profile != nil
	})
	if st.Profile.ID != "u1" {
		t.Fatalf("unexpected profile %+v", st.Profile)
	}
}

func TestSessionBootstrapper_SingleListenerReleasedOnStop(t *testing.T) {
	auth := newFakeAuthSource(nil)
	ensurer := newFakeEnsurer()
	b := NewSessionBootstrapper(zap.NewNop(), auth, ensurer, fakeAdminChecker{})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if auth.registrations != 1 || auth.active() != 1 {
		t.Fatalf("expected exactly one listener, got registrations=%d active=%d", auth.registrations, auth.active())
	}

	b.Stop()
	b.Stop()
	if auth.active() != 0 {
		t.Fatalf("expected listener released after stop, got %d", auth.active())
	}

	auth.emit(session("u1"))
	time.Sleep(20 * time.Millisecond)
	if n := ensurer.callCount("u1"); n != 0 {
		t.Fatalf("expected no provisioning after stop, got %d", n)
	}
}

func TestSessionBootstrapper_StopCancelsInFlightProvisioning(t *testing.T) {
	ensurer := newFakeEnsurer()
	ensurer.gates["u1"] = make(chan struct{})
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return session("u1"), nil
	})
	b := NewSessionBootstrapper(zap.NewNop(), auth, ensurer, fakeAdminChecker{})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitForState(t, b, func(st UserState) bool { return st.UserID() == "u1" && st.Loading })

	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop blocked on in-flight provisioning")
	}
	if st := b.State(); !st.Loading || st.Profile != nil {
		t.Fatalf("cancelled provisioning must not publish, got %+v", st)
	}
}

func TestSessionBootstrapper_SubscribeStreamsSnapshots(t *testing.T) {
	auth := newFakeAuthSource(nil)
	b := startBootstrapper(t, auth, newFakeEnsurer(), fakeAdminChecker{})

	states, cancel := b.Subscribe()
	defer cancel()

	auth.emit(session("u1"))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-states:
			if st.UserID() == "u1" && !st.Loading {
				st.Profile.UID = "mutated"
				if b.State().Profile.UID == "mutated" {
					t.Fatalf("snapshot shares memory with internal state")
				}
				return
			}
		case <-deadline:
			t.Fatalf("never observed ready state for u1")
		}
	}
}

func TestSessionBootstrapper_WaitReady(t *testing.T) {
	auth := newFakeAuthSource(func(context.Context) (*domain.Session, error) {
		return session("u1"), nil
	})
	b := startBootstrapper(t, auth, newFakeEnsurer(), fakeAdminChecker{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := b.WaitReady(ctx)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if st.Loading {
		t.Fatalf("expected non-loading state")
	}
}

func TestSessionBootstrapper_StartRequiresDependencies(t *testing.T) {
	b := NewSessionBootstrapper(nil, nil, nil, nil)
	if err := b.Start(context.Background()); !errors.Is(err, ErrBootstrapperNotConfigured) {
		t.Fatalf("expected ErrBootstrapperNotConfigured, got %v", err)
	}
}
