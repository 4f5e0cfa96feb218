// internal/circulation/implementation.go
package circulation

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/catalog"
)

// service implements the Service interface.
type service struct {
	store  catalog.Store
	logger *slog.Logger
	tracer trace.Tracer
	opts   options
}

// NewService creates a new circulation service instance.
func NewService(store catalog.Store, logger *slog.Logger, opts ...Option) Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &service{
		store:  store,
		logger: logger.With("component", "circulation"),
		tracer: otel.Tracer("librarian/circulation"),
		opts:   o,
	}
}

// Checkout relies on the store's conditional update, so two callers racing
// for the same book cannot both win.
func (s *service) Checkout(ctx context.Context, bookID, patronID int64) (*catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout",
		trace.WithAttributes(
			attribute.Int64("book.id", bookID),
			attribute.Int64("patron.id", patronID),
		),
	)
	defer span.End()

	today := s.opts.today()
	due := DueDate(today)

	book, err := s.store.CheckoutBook(ctx, bookID, patronID, due, s.opts.now().UTC())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.InfoContext(ctx, "checkout rejected", "book_id", bookID, "patron_id", patronID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "book checked out", "book_id", bookID, "patron_id", patronID, "due_date", due.Format("2006-01-02"))
	return book, nil
}

func (s *service) Return(ctx context.Context, bookID int64) (*catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.Int64("book.id", bookID)),
	)
	defer span.End()

	book, err := s.store.ReturnBook(ctx, bookID, s.opts.now().UTC())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.InfoContext(ctx, "return rejected", "book_id", bookID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "book returned", "book_id", bookID)
	return book, nil
}
