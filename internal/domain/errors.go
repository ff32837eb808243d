package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// The domain error set is closed: the HTTP boundary switches on these
// types with errors.As instead of matching message strings. Anything
// the store raises that is not translated here propagates unchanged as
// an infrastructure failure.

// Reasons carried by InvalidTransitionError.
const (
	ReasonAlreadyCheckedOut = "already checked out"
	ReasonNotCheckedOut     = "not currently checked out"
)

// MissingFieldError reports a required create field the caller omitted.
type MissingFieldError struct {
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// DuplicateISBNError reports a uniqueness violation on isbn.
type DuplicateISBNError struct {
	ISBN string
}

func (e DuplicateISBNError) Error() string {
	return fmt.Sprintf("a book with isbn %q already exists", e.ISBN)
}

// BookNotFoundError reports a referenced book id that does not exist.
type BookNotFoundError struct {
	ID uuid.UUID
}

func (e BookNotFoundError) Error() string {
	return fmt.Sprintf("book %s not found", e.ID)
}

// InvalidTransitionError reports a rejected lifecycle transition. The
// reason distinguishes a checkout of an already-lent book from a return
// of a book that is not lent.
type InvalidTransitionError struct {
	Reason string
}

func (e InvalidTransitionError) Error() string {
	return "invalid transition: " + e.Reason
}
