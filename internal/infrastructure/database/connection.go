package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outdial/outdial/internal/domain/errors"
	"github.com/outdial/outdial/internal/infrastructure/config"
)

// Connect builds the shared pgx pool from configuration.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid database URL").WithCause(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.NewInternalError("failed to create connection pool").WithCause(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.NewExternalError("postgres", "ping failed").WithCause(err)
	}
	return pool, nil
}

// Durations are stored as whole seconds.

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

func durationToSeconds(d time.Duration) int {
	return int(d / time.Second)
}
