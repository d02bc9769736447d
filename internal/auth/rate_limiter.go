package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

// AttemptLimiter limita los intentos de inicio de sesion por email.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisAttemptLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisAttemptLimiter cuenta intentos en una ventana fija. Si redis
// falla se deja pasar el intento.
func NewRedisAttemptLimiter(client *redis.Client, window time.Duration, max int) AttemptLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisAttemptLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "auth:signin:rl:",
	}
}

func (l *redisAttemptLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := l.client.Eval(ctx, redisAllowScript, []string{l.prefix + normalizedKey}, seconds).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}
