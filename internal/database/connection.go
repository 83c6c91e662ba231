package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/osnovci/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "osnovci-api"

// DB owns the pgx pool shared by every repository
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

func poolConfigFrom(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod

	params := pc.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	// link and lockout timestamps are compared in UTC
	params["timezone"] = "UTC"

	return pc, nil
}

// NewConnection opens the pool and fails if Postgres does not answer a ping
// within ten seconds
func NewConnection(cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pc, err := poolConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database %s@%s: %w", cfg.Name, cfg.Host, err)
	}

	logger.Info("database connection established",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Name),
		slog.Int("max_conns", int(cfg.MaxConns)),
	)

	return NewFromPool(pool, logger), nil
}

// NewFromPool wraps an existing pool, e.g. one created by an integration test
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	return &DB{Pool: pool, logger: logger}
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// HealthCheck pings the database and reports pool usage on failure
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		stat := db.Pool.Stat()
		return fmt.Errorf("database unreachable (acquired=%d idle=%d total=%d): %w",
			stat.AcquiredConns(), stat.IdleConns(), stat.TotalConns(), err)
	}
	return nil
}
