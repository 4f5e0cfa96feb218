// internal/circulation/service.go
package circulation

import (
	"context"

	"librarian/internal/catalog"
)

// Service defines the checkout engine.
type Service interface {
	// Checkout lends the book to the patron until today plus LoanDays.
	Checkout(ctx context.Context, bookID, patronID int64) (*catalog.Book, error)
	// Return makes a lent book available again.
	Return(ctx context.Context, bookID int64) (*catalog.Book, error)
}
