package notify

import (
	"context"
)

// Store persists email logs and notifications. Email logs are append-only
// apart from the single pending to sent/failed transition.
type Store interface {
	CreateEmailLog(ctx context.Context, l *EmailLog) error
	UpdateEmailLogStatus(ctx context.Context, id int64, status, reason string) error
	GetEmailLog(ctx context.Context, id int64) (*EmailLog, error)
	ListEmailLogs(ctx context.Context, f EmailLogFilter) ([]EmailLog, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, patronID int64, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, patronID, id int64) (*Notification, error)
	DeleteNotification(ctx context.Context, patronID, id int64) error

	// PurgePatron deletes the patron's notifications and detaches their
	// email logs, keeping the recipient address.
	PurgePatron(ctx context.Context, patronID int64) error
}

func checkTarget(status string) error {
	if status != StatusSent && status != StatusFailed {
		return ErrInvalidStatusTransition
	}
	return nil
}
