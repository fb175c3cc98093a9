package memory

import (
	"context"
	"embed"
	"io/fs"

	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// versionTable keeps memory migrations apart from the application schema.
const versionTable = "goose_memory_version"

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// NewPostgres builds a Store on the shared pool and migrates the memory tables.
// Close releases the sql.DB wrapper only; the pool stays owned by the caller.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger, opts ...Option) (Store, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)

	fsys, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, goose.DialectPostgres, sqlDB, fsys, log, goose.WithTableName(versionTable)); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return newSQLStore(sqlDB, true, opts...), nil
}
