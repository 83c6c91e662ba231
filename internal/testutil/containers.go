//go:build integration

// Package testutil starts throwaway Postgres and Redis containers for the
// integration tests. Run with: go test -tags integration ./...
package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/osnovci/internal/cache"
	"github.com/BradenHooton/osnovci/internal/config"
	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/migrations"
)

// TestDB manages a PostgreSQL testcontainer with the schema migrated
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	DB        *database.DB
}

// SetupTestDatabase starts Postgres, runs the embedded goose migrations and
// returns a ready DB wrapper
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("osnovci"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container: container,
		Pool:      pool,
		DB:        database.NewFromPool(pool, quietLogger()),
	}, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetLogger(log.New(io.Discard, "", 0))
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	// goose needs a database/sql handle
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	return goose.UpContext(ctx, sqlDB, ".")
}

// Teardown closes the pool and stops the container
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates every table between tests
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"audit_logs",
		"parental_locks",
		"guardian_student_links",
		"link_requests",
		"login_attempts",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// TestRedis manages a Redis testcontainer
type TestRedis struct {
	Container testcontainers.Container
	Client    *cache.Client
}

// SetupTestRedis starts Redis and connects a cache client with a test prefix
func SetupTestRedis(ctx context.Context) (*TestRedis, error) {
	container, err := tcredis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis url: %w", err)
	}

	client, err := cache.NewClient(&config.RedisConfig{URL: url, KeyPrefix: "test:"}, quietLogger())
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &TestRedis{Container: container, Client: client}, nil
}

// Flush drops every key
func (r *TestRedis) Flush(ctx context.Context) error {
	return r.Client.Redis.FlushDB(ctx).Err()
}

func (r *TestRedis) Teardown(ctx context.Context) error {
	if r.Client != nil {
		r.Client.Close()
	}
	if r.Container != nil {
		return r.Container.Terminate(ctx)
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
