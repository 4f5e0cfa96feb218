// Package notify records and delivers reminder emails and in-app
// notifications for overdue books.
package notify

import (
	"errors"
	"time"

	"librarian/internal/catalog"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"

	TypeOverdueReminder = "overdue_reminder"
	TypeWeeklyReport    = "weekly_report"
	TypeTest            = "test"
)

// ErrInvalidStatusTransition is returned when an email log is not pending.
var ErrInvalidStatusTransition = errors.New("email log status can only move from pending to sent or failed")

// ValidEmailType reports whether t is a known email_type tag.
func ValidEmailType(t string) bool {
	switch t {
	case TypeOverdueReminder, TypeWeeklyReport, TypeTest:
		return true
	}
	return false
}

// EmailLog is the audit record of one delivery attempt. PatronID is nil for
// messages without a patron and after the patron is deleted.
type EmailLog struct {
	ID        int64     `json:"id" db:"id" goqu:"skipinsert"`
	PatronID  *int64    `json:"patron_id" db:"patron_id"`
	Recipient string    `json:"recipient" db:"recipient"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	SentAt    time.Time `json:"sent_at" db:"sent_at"`
	Status    string    `json:"status" db:"status"`
	EmailType string    `json:"email_type" db:"email_type"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
}

// Notification is an in-app message for one patron.
type Notification struct {
	ID        int64     `json:"id" db:"id" goqu:"skipinsert"`
	PatronID  int64     `json:"patron_id" db:"patron_id"`
	Message   string    `json:"message" db:"message"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EmailLogFilter narrows ListEmailLogs. An empty Type matches every type.
type EmailLogFilter struct {
	Type string
	Page catalog.Page
}

// Delivery is the outcome of handing one message to the transport.
type Delivery struct {
	Status string
	Reason string
}

// OK reports whether the message was accepted by the transport.
func (d Delivery) OK() bool {
	return d.Status == StatusSent
}

// Summary counts the outcomes of one overdue batch.
type Summary struct {
	Sent    int `json:"sent_count"`
	Failed  int `json:"failed_count"`
	Skipped int `json:"skipped_count"`
}
