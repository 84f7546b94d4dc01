// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/tgwarmup/tgwarmup/internal/database"
)

// New returns a fresh, migrated database in a temp directory. It is closed
// when the test ends.
func New(t testing.TB) *database.DB {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.Driver = string(database.DialectSQLite)
	cfg.URL = "file:" + filepath.Join(t.TempDir(), "warmup.db") + "?_foreign_keys=on&_busy_timeout=5000"

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(ctx, db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
