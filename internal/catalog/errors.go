package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a book or patron id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a checkout or return does not
	// apply to the book's current state. No state is changed.
	ErrInvalidTransition = errors.New("invalid state transition")

	ErrAlreadyCheckedOut = fmt.Errorf("%w: book already checked out", ErrInvalidTransition)
	ErrNotCheckedOut     = fmt.Errorf("%w: book not checked out", ErrInvalidTransition)

	ErrPatronHasLoans = errors.New("patron still holds checked-out books")
	ErrUsernameTaken  = errors.New("username already registered")
	ErrInvalidBook    = errors.New("title and author are required")
)
