package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/storage"
)

const (
	booksTable      = "books"
	patronsTable    = "patrons"
	loanEventsTable = "loan_events"
)

// SQLStore is the relational Store backed by goqu.
type SQLStore struct {
	db     *storage.DB
	tracer trace.Tracer
}

// NewSQLStore wraps an opened database.
func NewSQLStore(db *storage.DB) *SQLStore {
	return &SQLStore{
		db:     db,
		tracer: otel.Tracer("librarian/catalog"),
	}
}

func (s *SQLStore) CreateBook(ctx context.Context, b *Book) error {
	id, err := storage.InsertID(ctx, s.db.Dialect, s.db.Goqu.Insert(booksTable).Rows(b))
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	b.ID = id
	return nil
}

func (s *SQLStore) GetBook(ctx context.Context, id int64) (*Book, error) {
	var b Book
	found, err := s.db.Goqu.From(booksTable).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &b)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return &b, nil
}

func (s *SQLStore) FindBookByTitle(ctx context.Context, title string) (*Book, error) {
	var b Book
	found, err := s.db.Goqu.From(booksTable).
		Where(goqu.C("title").Eq(title)).
		Order(goqu.C("id").Asc()).
		ScanStructContext(ctx, &b)
	if err != nil {
		return nil, fmt.Errorf("find book: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("book %q: %w", title, ErrNotFound)
	}
	return &b, nil
}

func (s *SQLStore) ListBooks(ctx context.Context, page Page) ([]Book, error) {
	page = page.Normalize()
	books := []Book{}
	err := s.db.Goqu.From(booksTable).
		Order(goqu.C("id").Asc()).
		Offset(uint(page.Skip)).
		Limit(uint(page.Limit)).
		ScanStructsContext(ctx, &books)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *SQLStore) ListBooksByPatron(ctx context.Context, patronID int64) ([]Book, error) {
	books := []Book{}
	err := s.db.Goqu.From(booksTable).
		Where(goqu.C("patron_id").Eq(patronID)).
		Order(goqu.C("due_date").Asc(), goqu.C("id").Asc()).
		ScanStructsContext(ctx, &books)
	if err != nil {
		return nil, fmt.Errorf("list patron books: %w", err)
	}
	return books, nil
}

// DeleteBook removes the book; its loan history goes with it.
func (s *SQLStore) DeleteBook(ctx context.Context, id int64) error {
	tx, err := s.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Delete(loanEventsTable).Where(goqu.C("book_id").Eq(id)).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("delete loan history: %w", err)
	}
	res, err := tx.Delete(booksTable).Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLStore) CheckoutBook(ctx context.Context, bookID, patronID int64, due, at time.Time) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.checkout",
		trace.WithAttributes(
			attribute.Int64("book.id", bookID),
			attribute.Int64("patron.id", patronID),
		),
	)
	defer span.End()

	tx, err := s.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	patrons, err := tx.From(patronsTable).Where(goqu.C("id").Eq(patronID)).CountContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("check patron: %w", err)
	}
	if patrons == 0 {
		return nil, fmt.Errorf("patron %d: %w", patronID, ErrNotFound)
	}

	res, err := tx.Update(booksTable).
		Set(goqu.Record{"patron_id": patronID, "due_date": due}).
		Where(goqu.C("id").Eq(bookID), goqu.C("patron_id").IsNull()).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, s.classifyMiss(ctx, tx, bookID, ErrAlreadyCheckedOut)
	}

	event := LoanEvent{BookID: bookID, PatronID: patronID, Kind: LoanCheckout, DueDate: &due, OccurredAt: at}
	if _, err := tx.Insert(loanEventsTable).Rows(event).Executor().ExecContext(ctx); err != nil {
		return nil, fmt.Errorf("append loan event: %w", err)
	}

	book, err := scanBook(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkout: %w", err)
	}
	return book, nil
}

func (s *SQLStore) ReturnBook(ctx context.Context, bookID int64, at time.Time) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.return",
		trace.WithAttributes(attribute.Int64("book.id", bookID)),
	)
	defer span.End()

	tx, err := s.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanBook(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if current.PatronID == nil {
		return nil, ErrNotCheckedOut
	}

	res, err := tx.Update(booksTable).
		Set(goqu.Record{"patron_id": nil, "due_date": nil}).
		Where(goqu.C("id").Eq(bookID), goqu.C("patron_id").Eq(*current.PatronID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, s.classifyMiss(ctx, tx, bookID, ErrNotCheckedOut)
	}

	event := LoanEvent{BookID: bookID, PatronID: *current.PatronID, Kind: LoanReturn, OccurredAt: at}
	if _, err := tx.Insert(loanEventsTable).Rows(event).Executor().ExecContext(ctx); err != nil {
		return nil, fmt.Errorf("append loan event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit return: %w", err)
	}
	return &Book{ID: current.ID, Title: current.Title, Author: current.Author}, nil
}

// classifyMiss explains a conditional update that touched no rows.
func (s *SQLStore) classifyMiss(ctx context.Context, tx *goqu.TxDatabase, bookID int64, conflict error) error {
	n, err := tx.From(booksTable).Where(goqu.C("id").Eq(bookID)).CountContext(ctx)
	if err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return conflict
}

func scanBook(ctx context.Context, tx *goqu.TxDatabase, id int64) (*Book, error) {
	var b Book
	found, err := tx.From(booksTable).Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &b)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return &b, nil
}

func (s *SQLStore) ListOverdue(ctx context.Context, asOf time.Time) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.list_overdue")
	defer span.End()

	books := []Book{}
	err := s.db.Goqu.From(booksTable).
		Where(goqu.C("due_date").IsNotNull(), goqu.C("due_date").Lt(asOf)).
		Order(goqu.C("id").Asc()).
		ScanStructsContext(ctx, &books)
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}
	span.SetAttributes(attribute.Int("overdue.count", len(books)))
	return books, nil
}

func (s *SQLStore) Counts(ctx context.Context, asOf, since time.Time) (Counts, error) {
	var c Counts
	var err error
	books := s.db.Goqu.From(booksTable)

	if c.Total, err = books.CountContext(ctx); err != nil {
		return Counts{}, fmt.Errorf("count books: %w", err)
	}
	if c.CheckedOut, err = books.Where(goqu.C("patron_id").IsNotNull()).CountContext(ctx); err != nil {
		return Counts{}, fmt.Errorf("count checked out: %w", err)
	}
	if c.Overdue, err = books.Where(goqu.C("due_date").IsNotNull(), goqu.C("due_date").Lt(asOf)).CountContext(ctx); err != nil {
		return Counts{}, fmt.Errorf("count overdue: %w", err)
	}
	if c.RecentCheckouts, err = books.Where(goqu.C("due_date").Gte(since)).CountContext(ctx); err != nil {
		return Counts{}, fmt.Errorf("count recent: %w", err)
	}
	return c, nil
}

func (s *SQLStore) LoanHistory(ctx context.Context, bookID int64) ([]LoanEvent, error) {
	events := []LoanEvent{}
	err := s.db.Goqu.From(loanEventsTable).
		Where(goqu.C("book_id").Eq(bookID)).
		Order(goqu.C("id").Asc()).
		ScanStructsContext(ctx, &events)
	if err != nil {
		return nil, fmt.Errorf("loan history: %w", err)
	}
	return events, nil
}

func (s *SQLStore) CreatePatron(ctx context.Context, p *Patron) error {
	id, err := storage.InsertID(ctx, s.db.Dialect, s.db.Goqu.Insert(patronsTable).Rows(p))
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert patron: %w", err)
	}
	p.ID = id
	return nil
}

func (s *SQLStore) GetPatron(ctx context.Context, id int64) (*Patron, error) {
	return s.getPatron(ctx, goqu.C("id").Eq(id), fmt.Sprintf("patron %d", id))
}

func (s *SQLStore) GetPatronByUsername(ctx context.Context, username string) (*Patron, error) {
	return s.getPatron(ctx, goqu.C("username").Eq(username), fmt.Sprintf("patron %q", username))
}

func (s *SQLStore) getPatron(ctx context.Context, where exp.Expression, label string) (*Patron, error) {
	var p Patron
	found, err := s.db.Goqu.From(patronsTable).Where(where).ScanStructContext(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("get patron: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", label, ErrNotFound)
	}
	return &p, nil
}

func (s *SQLStore) ListPatrons(ctx context.Context, page Page) ([]Patron, error) {
	page = page.Normalize()
	patrons := []Patron{}
	err := s.db.Goqu.From(patronsTable).
		Order(goqu.C("id").Asc()).
		Offset(uint(page.Skip)).
		Limit(uint(page.Limit)).
		ScanStructsContext(ctx, &patrons)
	if err != nil {
		return nil, fmt.Errorf("list patrons: %w", err)
	}
	return patrons, nil
}

func (s *SQLStore) SetPatronRole(ctx context.Context, id int64, role string) error {
	res, err := s.db.Goqu.Update(patronsTable).
		Set(goqu.Record{"role": role}).
		Where(goqu.C("id").Eq(id)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patron %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) DeletePatron(ctx context.Context, id int64) error {
	tx, err := s.db.Goqu.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	held, err := tx.From(booksTable).Where(goqu.C("patron_id").Eq(id)).CountContext(ctx)
	if err != nil {
		return fmt.Errorf("count held books: %w", err)
	}
	if held > 0 {
		return ErrPatronHasLoans
	}

	res, err := tx.Delete(patronsTable).Where(goqu.C("id").Eq(id)).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete patron: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patron %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}
