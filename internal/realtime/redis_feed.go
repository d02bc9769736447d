package realtime

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisPrefix = "changes:"

// RedisFeed consume cambios publicados en canales pub/sub de Redis, uno
// por tabla y usuario: changes:<tabla>:user:<id>. Los canales sin filtro
// usan changes:<tabla>:all, donde el publicador repite cada cambio.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisFeed(client *redis.Client, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, prefix: defaultRedisPrefix, logger: logger}
}

func (f *RedisFeed) channelName(spec ChannelSpec) string {
	if spec.Filter.Value == "" {
		return f.prefix + spec.Table + ":all"
	}
	return f.prefix + spec.Table + ":user:" + spec.Filter.Value
}

func (f *RedisFeed) Open(ctx context.Context, spec ChannelSpec, handler Handler) (Channel, error) {
	name := f.channelName(spec)
	ps := f.client.Subscribe(ctx, name)
	// Receive espera la confirmacion del SUBSCRIBE.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	c := &redisChannel{ps: ps, done: make(chan struct{})}
	go c.loop(spec, handler, f.logger.With(zap.String("channel", name)))
	return c, nil
}

type redisChannel struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (c *redisChannel) loop(spec ChannelSpec, handler Handler, logger *zap.Logger) {
	defer close(c.done)
	for msg := range c.ps.Channel() {
		ev, ok, err := decodeChange([]byte(msg.Payload), spec)
		if err != nil {
			logger.Warn("dropping change payload", zap.Error(err))
			continue
		}
		if ok {
			handler(ev)
		}
	}
}

func (c *redisChannel) Close() error {
	c.once.Do(func() {
		c.err = c.ps.Close()
		<-c.done
	})
	return c.err
}
