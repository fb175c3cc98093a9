package memory

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// OpenSQLite opens (creating if needed) the local memory database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, log *logger.Logger, opts ...Option) (Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer keeps check-then-record sequences from interleaving at the driver level.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open memory db: %w", err)
	}

	fsys, err := fs.Sub(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, goose.DialectSQLite3, conn, fsys, log); err != nil {
		conn.Close()
		return nil, err
	}

	return newSQLStore(conn, true, opts...), nil
}
