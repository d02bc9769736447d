package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"wallet-sync/internal/domain"
)

const pgRetryDelay = time.Second

// PgNotifyFeed escucha LISTEN <tabla>_changes sobre una conexion dedicada
// del pool y reparte las notificaciones a los canales registrados.
type PgNotifyFeed struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tables []string

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*pgChannel
}

func NewPgNotifyFeed(pool *pgxpool.Pool, logger *zap.Logger, streams []StreamSpec) *PgNotifyFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[string]bool)
	var tables []string
	for _, s := range streams {
		if !seen[s.Table] {
			seen[s.Table] = true
			tables = append(tables, s.Table)
		}
	}
	return &PgNotifyFeed{
		pool:   pool,
		logger: logger,
		tables: tables,
		subs:   make(map[string]map[int]*pgChannel),
	}
}

func notifyChannel(table string) string {
	return table + "_changes"
}

// Run mantiene la conexion de escucha hasta que ctx se cancela,
// reconectando ante errores de transporte.
func (f *PgNotifyFeed) Run(ctx context.Context) error {
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("notify listener interrupted", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pgRetryDelay):
		}
	}
}

func (f *PgNotifyFeed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	for _, table := range f.tables {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel(table)}.Sanitize()); err != nil {
			return err
		}
	}
	f.logger.Info("listening for changes", zap.Strings("tables", f.tables))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		f.dispatch(strings.TrimSuffix(n.Channel, "_changes"), []byte(n.Payload))
	}
}

func (f *PgNotifyFeed) dispatch(table string, payload []byte) {
	f.mu.Lock()
	targets := make([]*pgChannel, 0, len(f.subs[table]))
	for _, c := range f.subs[table] {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		ev, ok, err := decodeChange(payload, c.spec)
		if err != nil {
			f.logger.Warn("dropping change payload", zap.String("table", table), zap.Error(err))
			return
		}
		if ok {
			c.deliver(ev)
		}
	}
}

var ErrUnknownTable = errors.New("table not watched by feed")

func (f *PgNotifyFeed) Open(_ context.Context, spec ChannelSpec, handler Handler) (Channel, error) {
	watched := false
	for _, t := range f.tables {
		if t == spec.Table {
			watched = true
			break
		}
	}
	if !watched {
		return nil, ErrUnknownTable
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	c := &pgChannel{feed: f, id: id, spec: spec, handler: handler}
	if f.subs[spec.Table] == nil {
		f.subs[spec.Table] = make(map[int]*pgChannel)
	}
	f.subs[spec.Table][id] = c
	return c, nil
}

func (f *PgNotifyFeed) remove(c *pgChannel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs[c.spec.Table], c.id)
}

type pgChannel struct {
	feed    *PgNotifyFeed
	id      int
	spec    ChannelSpec
	handler Handler

	// mu serializa entregas contra Close para que no haya llamadas al
	// handler despues de cerrar.
	mu     sync.Mutex
	closed bool
}

func (c *pgChannel) deliver(ev domain.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.handler(ev)
}

func (c *pgChannel) Close() error {
	c.feed.remove(c)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
