package circulation

import (
	"context"
	"time"

	"librarian/internal/catalog"
)

// Scanner finds checked-out books whose due date has passed.
type Scanner struct {
	store catalog.Store
	opts  options
}

func NewScanner(store catalog.Store, opts ...Option) *Scanner {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Scanner{store: store, opts: o}
}

// FindOverdue returns every book with a due date strictly before asOf.
// A book due on asOf itself is not overdue. Order is unspecified.
func (s *Scanner) FindOverdue(ctx context.Context, asOf time.Time) ([]catalog.Book, error) {
	return s.store.ListOverdue(ctx, catalog.DateOf(asOf))
}

// Today is the scanner's current calendar day.
func (s *Scanner) Today() time.Time {
	return s.opts.today()
}
