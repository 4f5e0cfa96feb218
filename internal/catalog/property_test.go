package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"librarian/internal/catalog"
)

// Random sequences of checkouts and returns never leave a book with only
// one of borrower and due date set, and find-overdue matches its definition.
func TestLoanInvariantProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := catalog.NewMemoryStore()
		base := day("2024-01-01")

		nBooks := rapid.IntRange(1, 6).Draw(t, "books")
		nPatrons := rapid.IntRange(1, 4).Draw(t, "patrons")
		for i := 0; i < nBooks; i++ {
			if err := s.CreateBook(ctx, &catalog.Book{Title: "t", Author: "a"}); err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < nPatrons; i++ {
			p := &catalog.Patron{Username: rapid.StringMatching(`[a-z]{8}`).Draw(t, "username") + string(rune('a'+i)), Role: catalog.RolePatron}
			if err := s.CreatePatron(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		steps := rapid.IntRange(0, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			book := int64(rapid.IntRange(1, nBooks).Draw(t, "book"))
			before, _ := s.GetBook(ctx, book)
			now := base.AddDate(0, 0, rapid.IntRange(0, 60).Draw(t, "offset"))

			if rapid.Bool().Draw(t, "checkout") {
				patron := int64(rapid.IntRange(1, nPatrons).Draw(t, "patron"))
				_, err := s.CheckoutBook(ctx, book, patron, now.AddDate(0, 0, 14), now)
				if before.CheckedOut() != errors.Is(err, catalog.ErrAlreadyCheckedOut) {
					t.Fatalf("checkout of book %d: lent=%v err=%v", book, before.CheckedOut(), err)
				}
			} else {
				_, err := s.ReturnBook(ctx, book, now)
				if before.CheckedOut() == errors.Is(err, catalog.ErrNotCheckedOut) {
					t.Fatalf("return of book %d: lent=%v err=%v", book, before.CheckedOut(), err)
				}
			}

			after, _ := s.GetBook(ctx, book)
			if (after.PatronID == nil) != (after.DueDate == nil) {
				t.Fatalf("book %d has borrower=%v due=%v", book, after.PatronID, after.DueDate)
			}
		}

		asOf := base.AddDate(0, 0, rapid.IntRange(0, 90).Draw(t, "as_of"))
		overdue, err := s.ListOverdue(ctx, asOf)
		if err != nil {
			t.Fatal(err)
		}
		got := map[int64]bool{}
		for _, b := range overdue {
			got[b.ID] = true
		}
		all, _ := s.ListBooks(ctx, catalog.Page{Limit: catalog.MaxLimit})
		for _, b := range all {
			want := b.DueDate != nil && b.DueDate.Before(asOf)
			if got[b.ID] != want {
				t.Fatalf("book %d due %v as of %s: overdue=%v want %v", b.ID, b.DueDate, asOf.Format(time.DateOnly), got[b.ID], want)
			}
		}
	})
}
