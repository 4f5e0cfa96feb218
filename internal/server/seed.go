package server

import (
	"context"
	"errors"
	"fmt"

	"librarian/internal/catalog"
)

var seedBooks = []struct{ Title, Author string }{
	{"Crime and Punishment", "Fyodor Dostoevsky"},
	{"Les Misérables", "Victor Hugo"},
	{"Madonna in a Fur Coat", "Sabahattin Ali"},
	{"1984", "George Orwell"},
	{"Animal Farm", "George Orwell"},
	{"White Fang", "Jack London"},
	{"The Alchemist", "Paulo Coelho"},
	{"The Metamorphosis", "Franz Kafka"},
	{"The Disconnected", "Oğuz Atay"},
	{"Memed, My Hawk", "Yaşar Kemal"},
}

const (
	seedPatron   = "ahmet"
	seedPassword = "sifre123"
	seedLoan     = "Animal Farm"
)

// Seed adds the demo catalog, one patron and one loan. Running it again adds
// nothing; the loan is only made for a book that has never circulated.
func Seed(ctx context.Context, a *App) error {
	for _, sb := range seedBooks {
		_, err := a.Catalog.FindBookByTitle(ctx, sb.Title)
		if err == nil {
			continue
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
		if _, err := a.Books.AddBook(ctx, sb.Title, sb.Author); err != nil {
			return fmt.Errorf("add %q: %w", sb.Title, err)
		}
	}

	patron, err := a.Catalog.GetPatronByUsername(ctx, seedPatron)
	if errors.Is(err, catalog.ErrNotFound) {
		patron, err = a.Membership.Register(ctx, seedPatron, "", seedPassword)
	}
	if err != nil {
		return fmt.Errorf("seed patron: %w", err)
	}

	book, err := a.Catalog.FindBookByTitle(ctx, seedLoan)
	if err != nil {
		return err
	}
	history, err := a.Catalog.LoanHistory(ctx, book.ID)
	if err != nil {
		return err
	}
	if len(history) == 0 && !book.CheckedOut() {
		if _, err := a.Circulation.Checkout(ctx, book.ID, patron.ID); err != nil {
			return fmt.Errorf("seed loan: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "seed data ensured", "books", len(seedBooks), "patron", seedPatron)
	return nil
}
