// Package storage opens the relational store shared by the catalog and
// notification components and owns its schema.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"

	defaultConnectWait = 30 * time.Second
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// DB bundles the connection pool with a goqu handle for the matching dialect.
type DB struct {
	SQL     *sql.DB
	Goqu    *goqu.Database
	Dialect string
}

func init() {
	// Every dataset binds its values as placeholders, so times are encoded
	// by the driver and compare consistently with stored values.
	goqu.SetDefaultPrepared(true)
}

// Open connects using driver ("postgres", "pgx" or "sqlite3"), waits for the
// database to answer with exponential backoff and applies the schema.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if dialect == DialectSQLite {
		dsn, err = sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == DialectSQLite {
		// One connection serializes writers; busy_timeout covers other processes.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := sqlDB.PingContext(ctx); err != nil {
			logger.Warn("database not reachable yet", "driver", driver, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(defaultConnectWait))
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	db := &DB{
		SQL:     sqlDB,
		Goqu:    goqu.New(dialect, sqlDB),
		Dialect: dialect,
	}

	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the underlying pool.
func (d *DB) Close() error {
	if d == nil || d.SQL == nil {
		return nil
	}
	return d.SQL.Close()
}

// Healthy reports whether the database answers a ping.
func (d *DB) Healthy(ctx context.Context) bool {
	return d != nil && d.SQL.PingContext(ctx) == nil
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case "postgres", "pgx":
		return DialectPostgres, nil
	case "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// sqliteDSN ensures the parent directory exists and enables foreign keys,
// a busy timeout and immediate transactions.
func sqliteDSN(path string) (string, error) {
	file := strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(file, '?'); i >= 0 {
		return path, nil
	}
	if dir := filepath.Dir(file); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", file), nil
}

// InsertID runs an insert and returns the generated id. Postgres uses
// RETURNING; SQLite has no RETURNING support in goqu and reports LastInsertId.
func InsertID(ctx context.Context, dialect string, ds *goqu.InsertDataset) (int64, error) {
	if dialect == DialectPostgres {
		var id int64
		if _, err := ds.Returning("id").Executor().ScanValContext(ctx, &id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := ds.Executor().ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// IsUniqueViolation reports whether err is a unique constraint violation from
// any supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}
