// internal/catalog/implementation.go
package catalog

import (
	"context"
	"log/slog"
	"strings"
)

// service implements the Service interface.
type service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new catalog service instance.
func NewService(store Store, logger *slog.Logger) Service {
	return &service{
		store:  store,
		logger: logger.With("component", "catalog"),
	}
}

// AddBook creates an available copy.
func (s *service) AddBook(ctx context.Context, title, author string) (*Book, error) {
	b := &Book{Title: strings.TrimSpace(title), Author: strings.TrimSpace(author)}
	if b.Title == "" || b.Author == "" {
		return nil, ErrInvalidBook
	}
	if err := s.store.CreateBook(ctx, b); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book added", "book_id", b.ID, "title", b.Title)
	return b, nil
}

func (s *service) GetBook(ctx context.Context, id int64) (*Book, error) {
	return s.store.GetBook(ctx, id)
}

func (s *service) ListBooks(ctx context.Context, page Page) ([]Book, error) {
	return s.store.ListBooks(ctx, page)
}

// RemoveBook deletes the book even when it is checked out; the borrower
// reference disappears with the row.
func (s *service) RemoveBook(ctx context.Context, id int64) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "book removed", "book_id", id)
	return nil
}

func (s *service) History(ctx context.Context, bookID int64) ([]LoanEvent, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.LoanHistory(ctx, bookID)
}
