// internal/catalog/domain.go
package catalog

import (
	"time"
)

const (
	RolePatron = "patron"
	RoleAdmin  = "admin"

	LoanCheckout = "checkout"
	LoanReturn   = "return"
)

// Book is a single physical copy. PatronID and DueDate are either both set
// (checked out) or both nil (available).
type Book struct {
	ID       int64      `json:"id" db:"id" goqu:"skipinsert"`
	Title    string     `json:"title" db:"title"`
	Author   string     `json:"author" db:"author"`
	PatronID *int64     `json:"patron_id" db:"patron_id"`
	DueDate  *time.Time `json:"due_date" db:"due_date"`
}

// CheckedOut reports whether the book is currently lent.
func (b Book) CheckedOut() bool {
	return b.PatronID != nil
}

// Overdue reports whether the book was due strictly before asOf.
func (b Book) Overdue(asOf time.Time) bool {
	return b.DueDate != nil && b.DueDate.Before(asOf)
}

// Patron is a registered library user.
type Patron struct {
	ID           int64     `json:"id" db:"id" goqu:"skipinsert"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email,omitempty" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PasswordSalt string    `json:"-" db:"password_salt"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsAdmin reports whether the patron holds the admin role.
func (p Patron) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// LoanEvent is one entry of a book's checkout/return history.
type LoanEvent struct {
	ID         int64      `json:"id" db:"id" goqu:"skipinsert"`
	BookID     int64      `json:"book_id" db:"book_id"`
	PatronID   int64      `json:"patron_id" db:"patron_id"`
	Kind       string     `json:"kind" db:"kind"`
	DueDate    *time.Time `json:"due_date,omitempty" db:"due_date"`
	OccurredAt time.Time  `json:"occurred_at" db:"occurred_at"`
}

// Counts is an aggregate snapshot of the catalog.
type Counts struct {
	Total           int64
	CheckedOut      int64
	Overdue         int64
	RecentCheckouts int64
}

// Page bounds list queries.
type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// DateOf truncates t to midnight UTC of its calendar day in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
