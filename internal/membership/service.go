// internal/membership/service.go
package membership

import (
	"context"

	"librarian/internal/catalog"
)

// Service defines the patron account and roster operations.
type Service interface {
	Register(ctx context.Context, username, email, password string) (*catalog.Patron, error)
	Authenticate(ctx context.Context, username, password string) (*catalog.Patron, error)
	GetPatron(ctx context.Context, id int64) (*catalog.Patron, error)
	ListPatrons(ctx context.Context, page catalog.Page) ([]catalog.Patron, error)
	HeldBooks(ctx context.Context, id int64) ([]catalog.Book, error)
	DeletePatron(ctx context.Context, id int64) error
	EnsureAdmin(ctx context.Context, username, password string) (*catalog.Patron, error)
}

// PatronPurger removes per-patron records owned by other components once
// the patron is gone.
type PatronPurger interface {
	PurgePatron(ctx context.Context, patronID int64) error
}
