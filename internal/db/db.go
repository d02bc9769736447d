package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wallet-sync/internal/config"
)

// NewPool construye el pool de conexiones hacia el store persistente.
// Se reserva una conexion extra para el LISTEN del feed en tiempo real.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = 6
	poolCfg.MinConns = 1
	if cfg.RealtimeBackend == config.RealtimeBackendPostgres {
		poolCfg.MaxConns++
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
