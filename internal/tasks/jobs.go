package tasks

import (
	"context"
	"fmt"
	"time"

	"librarian/internal/catalog"
	"librarian/internal/notify"
)

// ReportWindowDays is the trailing window for RecentCheckouts.
const ReportWindowDays = 7

// OverdueFinder is the scanner half of the reminder pipeline.
type OverdueFinder interface {
	Today() time.Time
	FindOverdue(ctx context.Context, asOf time.Time) ([]catalog.Book, error)
}

// Counter computes the aggregate book counts.
type Counter interface {
	Counts(ctx context.Context, asOf, since time.Time) (catalog.Counts, error)
}

// Mailer is the emitter half of the reminder pipeline.
type Mailer interface {
	ProcessOverdueBatch(ctx context.Context, books []catalog.Book) (notify.Summary, error)
	SendTestEmail(ctx context.Context) (*notify.EmailLog, error)
}

// ReminderResult is the outcome of one reminder run.
type ReminderResult struct {
	AsOf    string `json:"as_of"`
	Overdue int    `json:"overdue_count"`
	notify.Summary
}

// Report is the weekly catalog snapshot.
type Report struct {
	AsOf            string `json:"as_of"`
	TotalBooks      int64  `json:"total_books"`
	CheckedOut      int64  `json:"checked_out_books"`
	Overdue         int64  `json:"overdue_books"`
	Available       int64  `json:"available_books"`
	CheckoutRate    string `json:"checkout_rate"`
	RecentCheckouts int64  `json:"recent_checkouts"`
}

// BuildReport derives the report fields from raw counts.
func BuildReport(c catalog.Counts, asOf time.Time) Report {
	rate := "0%"
	if c.Total > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(c.CheckedOut)/float64(c.Total)*100)
	}
	return Report{
		AsOf:            asOf.Format("2006-01-02"),
		TotalBooks:      c.Total,
		CheckedOut:      c.CheckedOut,
		Overdue:         c.Overdue,
		Available:       c.Total - c.CheckedOut,
		CheckoutRate:    rate,
		RecentCheckouts: c.RecentCheckouts,
	}
}

// TestEmailResult is the outcome of a heartbeat run.
type TestEmailResult struct {
	EmailLogID int64  `json:"email_log_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Jobs holds the built-in task bodies.
type Jobs struct {
	scanner OverdueFinder
	counter Counter
	mailer  Mailer
}

func NewJobs(scanner OverdueFinder, counter Counter, mailer Mailer) *Jobs {
	return &Jobs{scanner: scanner, counter: counter, mailer: mailer}
}

// Register binds the built-in names on r.
func (j *Jobs) Register(r *Runner) {
	r.Register(NameOverdueReminders, j.OverdueReminders)
	r.Register(NameWeeklyReport, j.WeeklyReport)
	r.Register(NameSendTestEmail, j.SendTestEmail)
}

// OverdueReminders scans for overdue books as of today and emails each
// borrower. Individual delivery failures are part of the result, not an error.
func (j *Jobs) OverdueReminders(ctx context.Context) (any, error) {
	asOf := j.scanner.Today()
	books, err := j.scanner.FindOverdue(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("find overdue: %w", err)
	}
	sum, err := j.mailer.ProcessOverdueBatch(ctx, books)
	if err != nil {
		return nil, fmt.Errorf("process batch: %w", err)
	}
	return ReminderResult{AsOf: asOf.Format("2006-01-02"), Overdue: len(books), Summary: sum}, nil
}

func (j *Jobs) WeeklyReport(ctx context.Context) (any, error) {
	today := j.scanner.Today()
	c, err := j.counter.Counts(ctx, today, today.AddDate(0, 0, -ReportWindowDays))
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	return BuildReport(c, today), nil
}

func (j *Jobs) SendTestEmail(ctx context.Context) (any, error) {
	l, err := j.mailer.SendTestEmail(ctx)
	if err != nil {
		return nil, err
	}
	return TestEmailResult{EmailLogID: l.ID, Status: l.Status, Reason: l.Reason}, nil
}
