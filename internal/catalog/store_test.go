package catalog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/catalog"
	"librarian/internal/storage/storagetest"
)

var stores = map[string]func(t *testing.T) catalog.Store{
	"memory": func(t *testing.T) catalog.Store { return catalog.NewMemoryStore() },
	"sqlite": func(t *testing.T) catalog.Store { return catalog.NewSQLStore(storagetest.OpenSQLite(t)) },
	"postgres": func(t *testing.T) catalog.Store {
		return catalog.NewSQLStore(storagetest.OpenPostgres(t))
	},
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func sameDay(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.Format("2006-01-02"), got.UTC().Format("2006-01-02"))
}

func givenPatron(t *testing.T, s catalog.Store, username string) int64 {
	t.Helper()
	p := &catalog.Patron{Username: username, PasswordHash: "h", PasswordSalt: "s", Role: catalog.RolePatron, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreatePatron(context.Background(), p), "error in arranging test data")
	return p.ID
}

func givenBook(t *testing.T, s catalog.Store, title string) int64 {
	t.Helper()
	b := &catalog.Book{Title: title, Author: "George Orwell"}
	require.NoError(t, s.CreateBook(context.Background(), b), "error in arranging test data")
	return b.ID
}

func TestStores(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("checkout sets borrower and due date", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "ayse")
				book := givenBook(t, s, "1984")

				got, err := s.CheckoutBook(ctx, book, patron, day("2024-01-15"), day("2024-01-01"))
				require.NoError(t, err)
				require.NotNil(t, got.PatronID)
				assert.Equal(t, patron, *got.PatronID)
				sameDay(t, day("2024-01-15"), got.DueDate)

				stored, err := s.GetBook(ctx, book)
				require.NoError(t, err)
				assert.True(t, stored.CheckedOut())
			})

			t.Run("checkout of a lent book is rejected and changes nothing", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				first := givenPatron(t, s, "p7")
				second := givenPatron(t, s, "p9")
				book := givenBook(t, s, "1984")

				_, err := s.CheckoutBook(ctx, book, first, day("2024-01-15"), day("2024-01-01"))
				require.NoError(t, err)

				_, err = s.CheckoutBook(ctx, book, second, day("2024-01-16"), day("2024-01-02"))
				assert.ErrorIs(t, err, catalog.ErrAlreadyCheckedOut)
				assert.ErrorIs(t, err, catalog.ErrInvalidTransition)

				stored, err := s.GetBook(ctx, book)
				require.NoError(t, err)
				assert.Equal(t, first, *stored.PatronID)
				sameDay(t, day("2024-01-15"), stored.DueDate)
			})

			t.Run("checkout of unknown book or patron is not found", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "p1")
				book := givenBook(t, s, "Dune")

				_, err := s.CheckoutBook(ctx, 999, patron, day("2024-01-15"), day("2024-01-01"))
				assert.ErrorIs(t, err, catalog.ErrNotFound)

				_, err = s.CheckoutBook(ctx, book, 999, day("2024-01-15"), day("2024-01-01"))
				assert.ErrorIs(t, err, catalog.ErrNotFound)

				stored, err := s.GetBook(ctx, book)
				require.NoError(t, err)
				assert.False(t, stored.CheckedOut())
			})

			t.Run("return clears both fields and records history", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "p1")
				book := givenBook(t, s, "Dune")

				_, err := s.CheckoutBook(ctx, book, patron, day("2024-01-15"), day("2024-01-01"))
				require.NoError(t, err)

				got, err := s.ReturnBook(ctx, book, day("2024-01-05"))
				require.NoError(t, err)
				assert.Nil(t, got.PatronID)
				assert.Nil(t, got.DueDate)

				_, err = s.ReturnBook(ctx, book, day("2024-01-06"))
				assert.ErrorIs(t, err, catalog.ErrNotCheckedOut)
				assert.ErrorIs(t, err, catalog.ErrInvalidTransition)

				history, err := s.LoanHistory(ctx, book)
				require.NoError(t, err)
				require.Len(t, history, 2)
				assert.Equal(t, catalog.LoanCheckout, history[0].Kind)
				assert.Equal(t, catalog.LoanReturn, history[1].Kind)
				assert.Equal(t, patron, history[1].PatronID)
			})

			t.Run("return of unknown book is not found", func(t *testing.T) {
				s := open(t)
				_, err := s.ReturnBook(context.Background(), 42, day("2024-01-01"))
				assert.ErrorIs(t, err, catalog.ErrNotFound)
			})

			t.Run("overdue excludes books due on the reference date", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "p1")
				late := givenBook(t, s, "late")
				boundary := givenBook(t, s, "boundary")
				future := givenBook(t, s, "future")
				givenBook(t, s, "available")

				_, err := s.CheckoutBook(ctx, late, patron, day("2024-05-31"), day("2024-05-17"))
				require.NoError(t, err)
				_, err = s.CheckoutBook(ctx, boundary, patron, day("2024-06-01"), day("2024-05-18"))
				require.NoError(t, err)
				_, err = s.CheckoutBook(ctx, future, patron, day("2024-06-10"), day("2024-05-27"))
				require.NoError(t, err)

				overdue, err := s.ListOverdue(ctx, day("2024-06-01"))
				require.NoError(t, err)
				require.Len(t, overdue, 1)
				assert.Equal(t, late, overdue[0].ID)

				counts, err := s.Counts(ctx, day("2024-06-01"), day("2024-05-25"))
				require.NoError(t, err)
				assert.Equal(t, catalog.Counts{Total: 4, CheckedOut: 3, Overdue: 1, RecentCheckouts: 3}, counts)
			})

			t.Run("patron holding books cannot be deleted", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "holder")
				book := givenBook(t, s, "Dune")
				_, err := s.CheckoutBook(ctx, book, patron, day("2024-01-15"), day("2024-01-01"))
				require.NoError(t, err)

				assert.ErrorIs(t, s.DeletePatron(ctx, patron), catalog.ErrPatronHasLoans)
				_, err = s.GetPatron(ctx, patron)
				require.NoError(t, err, "patron must survive a rejected delete")

				_, err = s.ReturnBook(ctx, book, day("2024-01-02"))
				require.NoError(t, err)
				require.NoError(t, s.DeletePatron(ctx, patron))
				_, err = s.GetPatron(ctx, patron)
				assert.ErrorIs(t, err, catalog.ErrNotFound)
			})

			t.Run("deleting a lent book removes it and its history", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				patron := givenPatron(t, s, "p1")
				book := givenBook(t, s, "Dune")
				_, err := s.CheckoutBook(ctx, book, patron, day("2024-01-15"), day("2024-01-01"))
				require.NoError(t, err)

				require.NoError(t, s.DeleteBook(ctx, book))

				held, err := s.ListBooksByPatron(ctx, patron)
				require.NoError(t, err)
				assert.Empty(t, held)
				history, err := s.LoanHistory(ctx, book)
				require.NoError(t, err)
				assert.Empty(t, history)
				assert.ErrorIs(t, s.DeleteBook(ctx, book), catalog.ErrNotFound)
			})

			t.Run("usernames are unique", func(t *testing.T) {
				s := open(t)
				givenPatron(t, s, "ahmet")
				err := s.CreatePatron(context.Background(), &catalog.Patron{Username: "ahmet", PasswordHash: "h", PasswordSalt: "s", Role: catalog.RolePatron, CreatedAt: time.Now().UTC()})
				assert.ErrorIs(t, err, catalog.ErrUsernameTaken)
			})

			t.Run("list books paginates in id order", func(t *testing.T) {
				s := open(t)
				for _, title := range []string{"a", "b", "c", "d"} {
					givenBook(t, s, title)
				}

				page, err := s.ListBooks(context.Background(), catalog.Page{Skip: 1, Limit: 2})
				require.NoError(t, err)
				require.Len(t, page, 2)
				assert.Equal(t, "b", page[0].Title)
				assert.Equal(t, "c", page[1].Title)
			})

			t.Run("concurrent checkouts of one book have a single winner", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				book := givenBook(t, s, "1984")
				const callers = 8
				patrons := make([]int64, callers)
				for i := range patrons {
					patrons[i] = givenPatron(t, s, "racer"+string(rune('a'+i)))
				}

				var wg sync.WaitGroup
				results := make(chan error, callers)
				for _, p := range patrons {
					wg.Add(1)
					go func(patron int64) {
						defer wg.Done()
						_, err := s.CheckoutBook(ctx, book, patron, day("2024-01-15"), day("2024-01-01"))
						results <- err
					}(p)
				}
				wg.Wait()
				close(results)

				wins, conflicts := 0, 0
				for err := range results {
					switch {
					case err == nil:
						wins++
					case errors.Is(err, catalog.ErrAlreadyCheckedOut):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}
				assert.Equal(t, 1, wins)
				assert.Equal(t, callers-1, conflicts)
			})
		})
	}
}
