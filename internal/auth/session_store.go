package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKey = "auth:session:current"

// SessionStore persiste el access token de la sesion actual para que un
// reinicio del proceso pueda restaurarla. Load devuelve "" si no hay nada.
type SessionStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type memorySessionStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{}
}

func (s *memorySessionStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", nil
	}
	if !s.expiresAt.IsZero() && time.Now().UTC().After(s.expiresAt) {
		s.token = ""
		return "", nil
	}
	return s.token, nil
}

func (s *memorySessionStore) Save(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
	s.expiresAt = time.Time{}
	if ttl > 0 {
		s.expiresAt = time.Now().UTC().Add(ttl)
	}
	return nil
}

func (s *memorySessionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionStore struct {
	client redisKV
	key    string
}

func NewRedisSessionStore(client *redis.Client) SessionStore {
	if client == nil {
		return nil
	}
	return &redisSessionStore{client: client, key: sessionKey}
}

func (s *redisSessionStore) Load(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *redisSessionStore) Save(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.key, strings.TrimSpace(token), ttl).Err()
}

func (s *redisSessionStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.key).Err()
}
