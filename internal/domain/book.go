package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookStatus is the lending state of a book.
type BookStatus string

const (
	BookStatusAvailable  BookStatus = "available"
	BookStatusCheckedOut BookStatus = "checked_out"
)

// Book represents a single lending unit in the catalog.
type Book struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	ISBN          string     `json:"isbn"`
	PublishedYear int        `json:"published_year"`
	Status        BookStatus `json:"status"`
	CheckedOutAt  *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewBookInput carries the caller-supplied fields for creating a book.
// PublishedYear is a pointer so an omitted year is distinguishable from
// year zero.
type NewBookInput struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn"`
	PublishedYear *int   `json:"published_year"`
}

// Validate checks that every required field is present. It reports the
// first missing field as a MissingFieldError.
func (in NewBookInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return MissingFieldError{Field: "title"}
	}
	if strings.TrimSpace(in.Author) == "" {
		return MissingFieldError{Field: "author"}
	}
	if strings.TrimSpace(in.ISBN) == "" {
		return MissingFieldError{Field: "isbn"}
	}
	if in.PublishedYear == nil {
		return MissingFieldError{Field: "published_year"}
	}
	return nil
}

// BookUpdate describes a partial update. Nil fields are left unchanged.
type BookUpdate struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	PublishedYear *int    `json:"published_year"`
}

// IsEmpty reports whether the update changes no columns.
func (u BookUpdate) IsEmpty() bool {
	return u.Title == nil && u.Author == nil && u.ISBN == nil && u.PublishedYear == nil
}

// BookPage is one page of the catalog plus the unfiltered row count.
type BookPage struct {
	Books []Book `json:"books"`
	Total int    `json:"total"`
}
