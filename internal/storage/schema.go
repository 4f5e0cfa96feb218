package storage

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS patrons (
		id            BIGSERIAL PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		password_salt TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'patron',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id        BIGSERIAL PRIMARY KEY,
		title     TEXT NOT NULL,
		author    TEXT NOT NULL,
		patron_id BIGINT REFERENCES patrons(id),
		due_date  DATE,
		CONSTRAINT books_loan_consistent CHECK ((patron_id IS NULL) = (due_date IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_title ON books(title)`,
	`CREATE INDEX IF NOT EXISTS idx_books_due_date ON books(due_date)`,
	`CREATE TABLE IF NOT EXISTS loan_events (
		id          BIGSERIAL PRIMARY KEY,
		book_id     BIGINT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		patron_id   BIGINT NOT NULL,
		kind        TEXT NOT NULL,
		due_date    DATE,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_events_book ON loan_events(book_id)`,
	`CREATE TABLE IF NOT EXISTS email_logs (
		id         BIGSERIAL PRIMARY KEY,
		patron_id  BIGINT REFERENCES patrons(id) ON DELETE SET NULL,
		recipient  TEXT NOT NULL,
		subject    TEXT NOT NULL,
		body       TEXT NOT NULL,
		status     TEXT NOT NULL,
		email_type TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		sent_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_logs_type_sent ON email_logs(email_type, sent_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		patron_id  BIGINT NOT NULL REFERENCES patrons(id) ON DELETE CASCADE,
		message    TEXT NOT NULL,
		is_read    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_patron ON notifications(patron_id, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS patrons (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		password_salt TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'patron',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		title     TEXT NOT NULL,
		author    TEXT NOT NULL,
		patron_id INTEGER REFERENCES patrons(id),
		due_date  DATE,
		CHECK ((patron_id IS NULL) = (due_date IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_title ON books(title)`,
	`CREATE INDEX IF NOT EXISTS idx_books_due_date ON books(due_date)`,
	`CREATE TABLE IF NOT EXISTS loan_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id     INTEGER NOT NULL REFERENCES books(id) ON DELETE CASCADE,
		patron_id   INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		due_date    DATE,
		occurred_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_events_book ON loan_events(book_id)`,
	`CREATE TABLE IF NOT EXISTS email_logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		patron_id  INTEGER REFERENCES patrons(id) ON DELETE SET NULL,
		recipient  TEXT NOT NULL,
		subject    TEXT NOT NULL,
		body       TEXT NOT NULL,
		status     TEXT NOT NULL,
		email_type TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		sent_at    DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_logs_type_sent ON email_logs(email_type, sent_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		patron_id  INTEGER NOT NULL REFERENCES patrons(id) ON DELETE CASCADE,
		message    TEXT NOT NULL,
		is_read    BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_patron ON notifications(patron_id, created_at)`,
}

// Migrate creates the tables when they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Dialect == DialectSQLite {
		stmts = sqliteSchema
	}

	tx, err := d.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply statement %d: %w", i, err)
		}
	}

	return tx.Commit()
}
