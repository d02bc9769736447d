package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"wallet-sync/internal/domain"
	"wallet-sync/internal/repository"
)

var (
	ErrProfileStoreNotConfigured = errors.New("profile store not configured")
	ErrProfileInvalidUser        = errors.New("profile user id required")
)

// ProfileStore garantiza un unico perfil por usuario autenticado.
type ProfileStore struct {
	logger   *zap.Logger
	profiles repository.ProfileRepository
	group    singleflight.Group
	now      func() time.Time
	newUID   func() string
}

const maxUIDAttempts = 3

func NewProfileStore(logger *zap.Logger, profiles repository.ProfileRepository) *ProfileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileStore{
		logger:   logger,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
		newUID:   newDisplayUID,
	}
}

// Ensure busca el perfil del usuario y lo crea si no existe. Una clave
// duplicada al crear significa que otro llamador gano la carrera: se relee
// y se devuelve ese perfil.
func (s *ProfileStore) Ensure(ctx context.Context, userID, email string) (domain.Profile, error) {
	if s == nil || s.profiles == nil {
		return domain.Profile{}, ErrProfileStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, ErrProfileInvalidUser
	}

	v, err, _ := s.group.Do(userID, func() (interface{}, error) {
		return s.ensure(ctx, userID, normalizeEmail(email))
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return v.(domain.Profile), nil
}

func (s *ProfileStore) ensure(ctx context.Context, userID, email string) (domain.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !repository.IsNotFound(err) {
		return domain.Profile{}, fmt.Errorf("fetch profile: %w", err)
	}

	for attempt := 1; ; attempt++ {
		profile = domain.Profile{
			ID:        userID,
			UID:       s.newUID(),
			Email:     email,
			CreatedAt: s.now(),
		}
		err := s.profiles.Create(ctx, profile)
		if err == nil {
			return profile, nil
		}
		if !repository.IsUniqueViolation(err) {
			return domain.Profile{}, fmt.Errorf("create profile: %w", err)
		}

		existing, getErr := s.profiles.GetByID(ctx, userID)
		if getErr == nil {
			s.logger.Debug("profile created concurrently, refetching", zap.String("user_id", userID))
			return existing, nil
		}
		if !repository.IsNotFound(getErr) {
			return domain.Profile{}, fmt.Errorf("refetch profile: %w", getErr)
		}
		// Sin fila para el usuario: la clave repetida fue el uid.
		if attempt >= maxUIDAttempts {
			return domain.Profile{}, fmt.Errorf("create profile: display uid collisions: %w", err)
		}
		s.logger.Warn("display uid collision, retrying", zap.String("user_id", userID), zap.String("uid", profile.UID))
	}
}

// newDisplayUID genera el identificador corto que se muestra al usuario.
func newDisplayUID() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
