package notify

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"librarian/internal/catalog"
	"librarian/internal/storage"
)

const (
	emailLogsTable     = "email_logs"
	notificationsTable = "notifications"
)

// SQLStore is the relational Store backed by goqu.
type SQLStore struct {
	db *storage.DB
}

func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CreateEmailLog(ctx context.Context, l *EmailLog) error {
	id, err := storage.InsertID(ctx, s.db.Dialect, s.db.Goqu.Insert(emailLogsTable).Rows(l))
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	l.ID = id
	return nil
}

func (s *SQLStore) UpdateEmailLogStatus(ctx context.Context, id int64, status, reason string) error {
	if err := checkTarget(status); err != nil {
		return err
	}

	res, err := s.db.Goqu.Update(emailLogsTable).
		Set(goqu.Record{"status": status, "reason": reason}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(StatusPending)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update email log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetEmailLog(ctx, id); err != nil {
			return err
		}
		return ErrInvalidStatusTransition
	}
	return nil
}

func (s *SQLStore) GetEmailLog(ctx context.Context, id int64) (*EmailLog, error) {
	var l EmailLog
	found, err := s.db.Goqu.From(emailLogsTable).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &l)
	if err != nil {
		return nil, fmt.Errorf("get email log: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("email log %d: %w", id, catalog.ErrNotFound)
	}
	return &l, nil
}

func (s *SQLStore) ListEmailLogs(ctx context.Context, f EmailLogFilter) ([]EmailLog, error) {
	page := f.Page.Normalize()
	ds := s.db.Goqu.From(emailLogsTable)
	if f.Type != "" {
		ds = ds.Where(goqu.C("email_type").Eq(f.Type))
	}

	logs := []EmailLog{}
	err := ds.Order(goqu.C("sent_at").Desc(), goqu.C("id").Desc()).
		Offset(uint(page.Skip)).
		Limit(uint(page.Limit)).
		ScanStructsContext(ctx, &logs)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	return logs, nil
}

func (s *SQLStore) CreateNotification(ctx context.Context, n *Notification) error {
	id, err := storage.InsertID(ctx, s.db.Dialect, s.db.Goqu.Insert(notificationsTable).Rows(n))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id
	return nil
}

func (s *SQLStore) ListNotifications(ctx context.Context, patronID int64, unreadOnly bool) ([]Notification, error) {
	ds := s.db.Goqu.From(notificationsTable).Where(goqu.C("patron_id").Eq(patronID))
	if unreadOnly {
		ds = ds.Where(goqu.C("is_read").IsFalse())
	}

	out := []Notification{}
	if err := ds.Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).ScanStructsContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *SQLStore) MarkNotificationRead(ctx context.Context, patronID, id int64) (*Notification, error) {
	_, err := s.db.Goqu.Update(notificationsTable).
		Set(goqu.Record{"is_read": true}).
		Where(goqu.C("id").Eq(id), goqu.C("patron_id").Eq(patronID), goqu.C("is_read").IsFalse()).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}

	var n Notification
	found, err := s.db.Goqu.From(notificationsTable).
		Where(goqu.C("id").Eq(id), goqu.C("patron_id").Eq(patronID)).
		ScanStructContext(ctx, &n)
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("notification %d: %w", id, catalog.ErrNotFound)
	}
	return &n, nil
}

func (s *SQLStore) DeleteNotification(ctx context.Context, patronID, id int64) error {
	res, err := s.db.Goqu.Delete(notificationsTable).
		Where(goqu.C("id").Eq(id), goqu.C("patron_id").Eq(patronID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, catalog.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) PurgePatron(ctx context.Context, patronID int64) error {
	tx, err := s.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Delete(notificationsTable).Where(goqu.C("patron_id").Eq(patronID)).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	if _, err := tx.Update(emailLogsTable).
		Set(goqu.Record{"patron_id": nil}).
		Where(goqu.C("patron_id").Eq(patronID)).
		Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("detach email logs: %w", err)
	}
	return tx.Commit()
}
