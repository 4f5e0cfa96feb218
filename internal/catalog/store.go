package catalog

import (
	"context"
	"time"
)

// Store persists books, patrons and loan history. It is the only place the
// borrower fields of a book are written.
type Store interface {
	CreateBook(ctx context.Context, b *Book) error
	GetBook(ctx context.Context, id int64) (*Book, error)
	FindBookByTitle(ctx context.Context, title string) (*Book, error)
	ListBooks(ctx context.Context, page Page) ([]Book, error)
	ListBooksByPatron(ctx context.Context, patronID int64) ([]Book, error)
	DeleteBook(ctx context.Context, id int64) error

	// CheckoutBook assigns the book to the patron only if it is currently
	// available. The check and the write are one atomic step.
	CheckoutBook(ctx context.Context, bookID, patronID int64, due, at time.Time) (*Book, error)
	// ReturnBook clears the borrower only if the book is checked out.
	ReturnBook(ctx context.Context, bookID int64, at time.Time) (*Book, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]Book, error)
	Counts(ctx context.Context, asOf, since time.Time) (Counts, error)
	LoanHistory(ctx context.Context, bookID int64) ([]LoanEvent, error)

	CreatePatron(ctx context.Context, p *Patron) error
	GetPatron(ctx context.Context, id int64) (*Patron, error)
	GetPatronByUsername(ctx context.Context, username string) (*Patron, error)
	ListPatrons(ctx context.Context, page Page) ([]Patron, error)
	SetPatronRole(ctx context.Context, id int64, role string) error
	// DeletePatron rejects with ErrPatronHasLoans while the patron holds books.
	DeletePatron(ctx context.Context, id int64) error
}
