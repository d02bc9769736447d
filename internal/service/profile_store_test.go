package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

type mockProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]domain.Profile
	missFirst map[string]bool
	getErr    error
	createErr error
	creates   int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{
		profiles:  make(map[string]domain.Profile),
		missFirst: make(map[string]bool),
	}
}

func (m *mockProfileRepo) Create(_ context.Context, profile domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.profiles[profile.ID]; ok {
		return &pgconn.PgError{Code: "23505", ConstraintName: "profiles_pkey"}
	}
	for _, p := range m.profiles {
		if p.UID == profile.UID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "profiles_uid_key"}
		}
	}
	m.profiles[profile.ID] = profile
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.Profile{}, m.getErr
	}
	if m.missFirst[id] {
		delete(m.missFirst, id)
		return domain.Profile{}, pgx.ErrNoRows
	}
	p, ok := m.profiles[id]
	if !ok {
		return domain.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *mockProfileRepo) List(_ context.Context) ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func TestProfileStoreEnsure_ReturnsExisting(t *testing.T) {
	repo := newMockProfileRepo()
	repo.profiles["u1"] = domain.Profile{ID: "u1", UID: "AAAA0001", Email: "u1@example.com"}
	store := NewProfileStore(zap.NewNop(), repo)

	p, err := store.Ensure(context.Background(), "u1", "other@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.UID != "AAAA0001" || p.Email != "u1@example.com" {
		t.Fatalf("expected stored profile, got %+v", p)
	}
	if repo.creates != 0 {
		t.Fatalf("expected no create, got %d", repo.creates)
	}
}

func TestProfileStoreEnsure_CreatesWhenMissing(t *testing.T) {
	repo := newMockProfileRepo()
	store := NewProfileStore(zap.NewNop(), repo)

	p, err := store.Ensure(context.Background(), " u1 ", " U1@Example.com ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.ID != "u1" || p.Email != "u1@example.com" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if len(p.UID) != 8 {
		t.Fatalf("expected 8-char display uid, got %q", p.UID)
	}
	if p.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
	if _, ok := repo.profiles["u1"]; !ok {
		t.Fatalf("expected profile persisted")
	}
}

func TestProfileStoreEnsure_DuplicateCreateRefetches(t *testing.T) {
	repo := newMockProfileRepo()
	repo.profiles["u1"] = domain.Profile{ID: "u1", UID: "WINNER01"}
	repo.missFirst["u1"] = true
	store := NewProfileStore(zap.NewNop(), repo)

	p, err := store.Ensure(context.Background(), "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("duplicate key must not surface, got %v", err)
	}
	if p.UID != "WINNER01" {
		t.Fatalf("expected the concurrently created profile, got %+v", p)
	}
}

func sequenceUIDs(uids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		uid := uids[i%len(uids)]
		i++
		return uid
	}
}

func TestProfileStoreEnsure_UIDCollisionRetriesWithFreshUID(t *testing.T) {
	repo := newMockProfileRepo()
	repo.profiles["other"] = domain.Profile{ID: "other", UID: "TAKEN001"}
	store := NewProfileStore(zap.NewNop(), repo)
	store.newUID = sequenceUIDs("TAKEN001", "FRESH002")

	p, err := store.Ensure(context.Background(), "u1", "u1@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.ID != "u1" || p.UID != "FRESH002" {
		t.Fatalf("expected profile with fresh uid, got %+v", p)
	}
	if repo.creates != 2 {
		t.Fatalf("expected two create attempts, got %d", repo.creates)
	}
}

func TestProfileStoreEnsure_UIDCollisionsGiveUp(t *testing.T) {
	repo := newMockProfileRepo()
	repo.profiles["other"] = domain.Profile{ID: "other", UID: "TAKEN001"}
	store := NewProfileStore(zap.NewNop(), repo)
	store.newUID = sequenceUIDs("TAKEN001")

	_, err := store.Ensure(context.Background(), "u1", "u1@example.com")
	if err == nil {
		t.Fatalf("expected error after repeated collisions")
	}
	if repo.creates != maxUIDAttempts {
		t.Fatalf("expected %d attempts, got %d", maxUIDAttempts, repo.creates)
	}
}

func TestProfileStoreEnsure_CreateErrorSurfaces(t *testing.T) {
	repo := newMockProfileRepo()
	repo.createErr = &pgconn.PgError{Code: "42501", Message: "permission denied"}
	store := NewProfileStore(zap.NewNop(), repo)

	_, err := store.Ensure(context.Background(), "u1", "u1@example.com")
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42501" {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestProfileStoreEnsure_FetchErrorSurfaces(t *testing.T) {
	repo := newMockProfileRepo()
	repo.getErr = errors.New("connection reset")
	store := NewProfileStore(zap.NewNop(), repo)

	if _, err := store.Ensure(context.Background(), "u1", ""); err == nil {
		t.Fatalf("expected fetch error")
	}
	if repo.creates != 0 {
		t.Fatalf("must not create after an unknown fetch failure")
	}
}

func TestProfileStoreEnsure_InvalidInput(t *testing.T) {
	store := NewProfileStore(zap.NewNop(), newMockProfileRepo())
	if _, err := store.Ensure(context.Background(), "  ", "x@example.com"); !errors.Is(err, ErrProfileInvalidUser) {
		t.Fatalf("expected ErrProfileInvalidUser, got %v", err)
	}

	var nilStore *ProfileStore
	if _, err := nilStore.Ensure(context.Background(), "u1", ""); !errors.Is(err, ErrProfileStoreNotConfigured) {
		t.Fatalf("expected ErrProfileStoreNotConfigured, got %v", err)
	}
}

func TestProfileStoreEnsure_ConcurrentCallsYieldSingleProfile(t *testing.T) {
	repo := newMockProfileRepo()
	// Varias instancias simulan clientes distintos contra el mismo store.
	stores := []*ProfileStore{
		NewProfileStore(zap.NewNop(), repo),
		NewProfileStore(zap.NewNop(), repo),
		NewProfileStore(zap.NewNop(), repo),
	}

	const callers = 24
	results := make([]domain.Profile, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = stores[i%len(stores)].Ensure(context.Background(), "u1", "u1@example.com")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}
	if len(repo.profiles) != 1 {
		t.Fatalf("expected exactly one profile, got %d", len(repo.profiles))
	}
	want := repo.profiles["u1"]
	for i, p := range results {
		if p.ID != want.ID || p.UID != want.UID {
			t.Fatalf("caller %d got %+v, want %+v", i, p, want)
		}
	}
}
