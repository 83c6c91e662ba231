package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BradenHooton/osnovci/internal/config"
	"github.com/BradenHooton/osnovci/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const usage = `usage: migrate [flags] <command> [args]

commands:
  up            apply all pending migrations
  up-to V       apply migrations up to version V
  down          roll back the latest migration
  down-to V     roll back to version V
  redo          roll back and re-apply the latest migration
  status        print migration status
  version       print the current schema version
`

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	timeout := flag.Duration("timeout", 5*time.Minute, "overall migration timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, db, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("migration failed", slog.String("command", flag.Arg(0)), slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("migration finished", slog.String("command", flag.Arg(0)))
}

func run(ctx context.Context, db *sql.DB, command string, args []string) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.RunContext(ctx, command, db, ".", args...)
}
