// internal/catalog/service.go
package catalog

import (
	"context"
)

// Service defines the catalog administration operations.
type Service interface {
	AddBook(ctx context.Context, title, author string) (*Book, error)
	GetBook(ctx context.Context, id int64) (*Book, error)
	ListBooks(ctx context.Context, page Page) ([]Book, error)
	RemoveBook(ctx context.Context, id int64) error
	History(ctx context.Context, bookID int64) ([]LoanEvent, error)
}
