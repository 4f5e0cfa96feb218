package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/catalog"
)

var (
	emailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "librarian_emails_total",
		Help: "Email delivery attempts by type and outcome.",
	}, []string{"type", "status"})

	overdueSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "librarian_overdue_skipped_total",
		Help: "Overdue books skipped because they had no known borrower.",
	})
)

// PatronLookup resolves a borrower.
type PatronLookup interface {
	GetPatron(ctx context.Context, id int64) (*catalog.Patron, error)
}

// EmitterConfig carries addressing settings.
type EmitterConfig struct {
	From            string
	RecipientDomain string
	TestRecipient   string
	Now             func() time.Time
}

// Emitter writes the audit trail and notifications for reminder emails.
type Emitter struct {
	store     Store
	patrons   PatronLookup
	transport Transport
	cfg       EmitterConfig
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewEmitter(store Store, patrons PatronLookup, transport Transport, cfg EmitterConfig, logger *slog.Logger) *Emitter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Emitter{
		store:     store,
		patrons:   patrons,
		transport: transport,
		cfg:       cfg,
		logger:    logger.With("component", "notify"),
		tracer:    otel.Tracer("librarian/notify"),
	}
}

// ProcessOverdueBatch sends one reminder per overdue book. A delivery failure
// is recorded and the loop continues; only store errors abort the batch.
// Every book with a known borrower gets exactly one email log and one
// notification whatever the delivery outcome.
func (e *Emitter) ProcessOverdueBatch(ctx context.Context, books []catalog.Book) (Summary, error) {
	ctx, span := e.tracer.Start(ctx, "notify.process_overdue_batch",
		trace.WithAttributes(attribute.Int("batch.size", len(books))),
	)
	defer span.End()

	var sum Summary
	for _, b := range books {
		if b.PatronID == nil {
			sum.Skipped++
			overdueSkipped.Inc()
			e.logger.WarnContext(ctx, "overdue book has no borrower, skipping", "book_id", b.ID)
			continue
		}

		patron, err := e.patrons.GetPatron(ctx, *b.PatronID)
		if errors.Is(err, catalog.ErrNotFound) {
			sum.Skipped++
			overdueSkipped.Inc()
			e.logger.WarnContext(ctx, "borrower not found, skipping", "book_id", b.ID, "patron_id", *b.PatronID)
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("load patron %d: %w", *b.PatronID, err)
		}

		d, err := e.remind(ctx, b, *patron)
		if err != nil {
			return sum, err
		}
		if d.OK() {
			sum.Sent++
		} else {
			sum.Failed++
			e.logger.WarnContext(ctx, "reminder delivery failed", "book_id", b.ID, "patron_id", patron.ID, "reason", d.Reason)
		}
	}

	span.SetAttributes(
		attribute.Int("sent", sum.Sent),
		attribute.Int("failed", sum.Failed),
		attribute.Int("skipped", sum.Skipped),
	)
	e.logger.InfoContext(ctx, "overdue batch processed", "sent", sum.Sent, "failed", sum.Failed, "skipped", sum.Skipped)
	return sum, nil
}

func (e *Emitter) remind(ctx context.Context, b catalog.Book, p catalog.Patron) (Delivery, error) {
	now := e.cfg.Now().UTC()
	subject, body := Reminder(b, p, now)
	pid := p.ID

	d, err := e.send(ctx, &EmailLog{
		PatronID:  &pid,
		Recipient: RecipientFor(p, e.cfg.RecipientDomain),
		Subject:   subject,
		Body:      body,
		SentAt:    now,
		EmailType: TypeOverdueReminder,
	})
	if err != nil {
		return d, err
	}

	n := &Notification{PatronID: p.ID, Message: ReminderNotice(b), CreatedAt: now}
	if err := e.store.CreateNotification(ctx, n); err != nil {
		return d, fmt.Errorf("create notification: %w", err)
	}
	return d, nil
}

// send writes a pending log, calls the transport and records the outcome.
func (e *Emitter) send(ctx context.Context, l *EmailLog) (Delivery, error) {
	l.Status = StatusPending
	if err := e.store.CreateEmailLog(ctx, l); err != nil {
		return Delivery{}, fmt.Errorf("create email log: %w", err)
	}

	d := deliver(ctx, e.transport, Message{From: e.cfg.From, To: l.Recipient, Subject: l.Subject, Body: l.Body})

	if err := e.store.UpdateEmailLogStatus(ctx, l.ID, d.Status, d.Reason); err != nil {
		return d, fmt.Errorf("update email log %d: %w", l.ID, err)
	}
	l.Status, l.Reason = d.Status, d.Reason
	emailsTotal.WithLabelValues(l.EmailType, d.Status).Inc()
	return d, nil
}

// SendTestEmail exercises the transport end to end with no patron data.
func (e *Emitter) SendTestEmail(ctx context.Context) (*EmailLog, error) {
	ctx, span := e.tracer.Start(ctx, "notify.send_test_email")
	defer span.End()

	now := e.cfg.Now().UTC()
	subject, body := Heartbeat(now)
	l := &EmailLog{
		Recipient: e.cfg.TestRecipient,
		Subject:   subject,
		Body:      body,
		SentAt:    now,
		EmailType: TypeTest,
	}
	d, err := e.send(ctx, l)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "test email processed", "status", d.Status, "reason", d.Reason)
	return l, nil
}
