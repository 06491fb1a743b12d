// Package db persists resource documents in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// Pool limits applied to every pool created by NewPool.
const (
	maxConns = 20
	minConns = 2
)

// NewPool creates a pgx connection pool and verifies it with a ping.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}
	config.MaxConns = maxConns
	config.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies SQL migration files in order. Migrations are
// written to be re-runnable.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationState describes the schema of a database.
type MigrationState struct {
	Applied bool
	Files   int
	Path    string
}

func (s MigrationState) String() string {
	if s.Applied {
		return fmt.Sprintf("applied (schema present, %d migration files in %s)", s.Files, s.Path)
	}
	return fmt.Sprintf("not applied (run 'serene migrate up'), %d migration files in %s", s.Files, s.Path)
}

// MigrationStatus reports whether the resources table exists.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (MigrationState, error) {
	state := MigrationState{Path: migrationPath}

	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'resources')`).Scan(&state.Applied)
	if err != nil {
		return state, fmt.Errorf("%s - failed to check schema: %w", logPrefix, err)
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return state, err
	}
	state.Files = len(files)
	return state, nil
}
