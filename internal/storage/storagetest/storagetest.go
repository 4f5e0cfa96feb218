// Package storagetest opens throwaway databases for package tests.
package storagetest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"librarian/internal/storage"
)

// Discard is a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OpenSQLite returns a migrated SQLite database in a fresh temp dir.
func OpenSQLite(t testing.TB) *storage.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "library.db")
	db, err := storage.Open(context.Background(), "sqlite3", path, Discard())
	require.NoError(t, err, "error in arranging test database")
	t.Cleanup(func() { db.Close() })

	return db
}

// OpenPostgres connects to TEST_DATABASE_URL and skips the test when it is
// unset. Tables are truncated before the test runs.
func OpenPostgres(t testing.TB) *storage.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := storage.Open(context.Background(), "postgres", dsn, Discard())
	require.NoError(t, err, "error in arranging test database")
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL.Exec(`TRUNCATE notifications, email_logs, loan_events, books, patrons RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "error in truncating test database")

	return db
}
