// Package db provides database connection infrastructure.
// This is part of the platform layer and contains no business logic.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var appMigrations embed.FS

// RunMigrations applies the application schema (leads, calendar events) to the pool's database.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	fsys, err := fs.Sub(appMigrations, "migrations")
	if err != nil {
		return err
	}
	return Migrate(ctx, goose.DialectPostgres, sqlDB, fsys, log)
}

// Migrate runs every pending goose migration found at the root of fsys.
// Schemas sharing a database must pass goose.WithTableName to keep separate version tables.
func Migrate(ctx context.Context, dialect goose.Dialect, sqlDB *sql.DB, fsys fs.FS, log *logger.Logger, extra ...goose.ProviderOption) error {
	opts := append([]goose.ProviderOption{}, extra...)
	if log != nil {
		opts = append(opts, goose.WithSlog(log.Logger))
	}

	provider, err := goose.NewProvider(dialect, sqlDB, fsys, opts...)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if log != nil && len(results) > 0 {
		log.Info("migrations applied", "dialect", string(dialect), "count", len(results))
	}
	return nil
}
