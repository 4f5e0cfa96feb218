package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and DB_DRIVER=memory.
// A single mutex serializes every write, which makes checkout atomic.
type MemoryStore struct {
	mu       sync.Mutex
	books    map[int64]Book
	patrons  map[int64]Patron
	events   []LoanEvent
	nextBook int64
	nextPat  int64
	nextEvt  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[int64]Book),
		patrons: make(map[int64]Patron),
	}
}

func (m *MemoryStore) CreateBook(_ context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextBook++
	b.ID = m.nextBook
	m.books[b.ID] = cloneBook(*b)
	return nil
}

func (m *MemoryStore) GetBook(_ context.Context, id int64) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	out := cloneBook(b)
	return &out, nil
}

func (m *MemoryStore) FindBookByTitle(_ context.Context, title string) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.sortedBooks() {
		if b.Title == title {
			out := cloneBook(b)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("book %q: %w", title, ErrNotFound)
}

func (m *MemoryStore) ListBooks(_ context.Context, page Page) ([]Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return paginate(m.sortedBooks(), page.Normalize()), nil
}

func (m *MemoryStore) ListBooksByPatron(_ context.Context, patronID int64) ([]Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Book{}
	for _, b := range m.sortedBooks() {
		if b.PatronID != nil && *b.PatronID == patronID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteBook(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.books[id]; !ok {
		return fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	delete(m.books, id)

	kept := m.events[:0]
	for _, e := range m.events {
		if e.BookID != id {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

func (m *MemoryStore) CheckoutBook(_ context.Context, bookID, patronID int64, due, at time.Time) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patrons[patronID]; !ok {
		return nil, fmt.Errorf("patron %d: %w", patronID, ErrNotFound)
	}
	b, ok := m.books[bookID]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	if b.PatronID != nil {
		return nil, ErrAlreadyCheckedOut
	}

	pid, d := patronID, due
	b.PatronID, b.DueDate = &pid, &d
	m.books[bookID] = b
	m.appendEvent(LoanEvent{BookID: bookID, PatronID: patronID, Kind: LoanCheckout, DueDate: &d, OccurredAt: at})

	out := cloneBook(b)
	return &out, nil
}

func (m *MemoryStore) ReturnBook(_ context.Context, bookID int64, at time.Time) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[bookID]
	if !ok {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	if b.PatronID == nil {
		return nil, ErrNotCheckedOut
	}

	holder := *b.PatronID
	b.PatronID, b.DueDate = nil, nil
	m.books[bookID] = b
	m.appendEvent(LoanEvent{BookID: bookID, PatronID: holder, Kind: LoanReturn, OccurredAt: at})

	out := cloneBook(b)
	return &out, nil
}

func (m *MemoryStore) ListOverdue(_ context.Context, asOf time.Time) ([]Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Book{}
	for _, b := range m.sortedBooks() {
		if b.Overdue(asOf) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) Counts(_ context.Context, asOf, since time.Time) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counts
	for _, b := range m.books {
		c.Total++
		if b.PatronID != nil {
			c.CheckedOut++
		}
		if b.Overdue(asOf) {
			c.Overdue++
		}
		if b.DueDate != nil && !b.DueDate.Before(since) {
			c.RecentCheckouts++
		}
	}
	return c, nil
}

func (m *MemoryStore) LoanHistory(_ context.Context, bookID int64) ([]LoanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []LoanEvent{}
	for _, e := range m.events {
		if e.BookID == bookID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreatePatron(_ context.Context, p *Patron) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.patrons {
		if existing.Username == p.Username {
			return ErrUsernameTaken
		}
	}
	m.nextPat++
	p.ID = m.nextPat
	m.patrons[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetPatron(_ context.Context, id int64) (*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patrons[id]
	if !ok {
		return nil, fmt.Errorf("patron %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) GetPatronByUsername(_ context.Context, username string) (*Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.patrons {
		if p.Username == username {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("patron %q: %w", username, ErrNotFound)
}

func (m *MemoryStore) ListPatrons(_ context.Context, page Page) ([]Patron, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]Patron, 0, len(m.patrons))
	for _, p := range m.patrons {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, page.Normalize()), nil
}

func (m *MemoryStore) SetPatronRole(_ context.Context, id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patrons[id]
	if !ok {
		return fmt.Errorf("patron %d: %w", id, ErrNotFound)
	}
	p.Role = role
	m.patrons[id] = p
	return nil
}

func (m *MemoryStore) DeletePatron(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.patrons[id]; !ok {
		return fmt.Errorf("patron %d: %w", id, ErrNotFound)
	}
	for _, b := range m.books {
		if b.PatronID != nil && *b.PatronID == id {
			return ErrPatronHasLoans
		}
	}
	delete(m.patrons, id)
	return nil
}

// PutBook stores b as-is, bypassing the checkout rules. Tests use it to
// build states the public operations cannot reach.
func (m *MemoryStore) PutBook(b Book) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == 0 {
		m.nextBook++
		b.ID = m.nextBook
	} else if b.ID > m.nextBook {
		m.nextBook = b.ID
	}
	m.books[b.ID] = cloneBook(b)
}

func (m *MemoryStore) appendEvent(e LoanEvent) {
	m.nextEvt++
	e.ID = m.nextEvt
	m.events = append(m.events, e)
}

func (m *MemoryStore) sortedBooks() []Book {
	out := make([]Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, cloneBook(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneBook(b Book) Book {
	if b.PatronID != nil {
		pid := *b.PatronID
		b.PatronID = &pid
	}
	if b.DueDate != nil {
		due := *b.DueDate
		b.DueDate = &due
	}
	return b
}

func paginate[T any](items []T, page Page) []T {
	if page.Skip >= len(items) {
		return []T{}
	}
	end := page.Skip + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Skip:end]
}
