package domain

import (
	"time"

	"github.com/google/uuid"
)

// HistoryAction names a lifecycle transition recorded in the audit log.
type HistoryAction string

const (
	HistoryActionCheckedOut HistoryAction = "checked_out"
	HistoryActionReturned   HistoryAction = "returned"
)

// HistoryEntry is an immutable audit record of one lifecycle transition.
type HistoryEntry struct {
	ID        uuid.UUID     `json:"id"`
	BookID    uuid.UUID     `json:"book_id"`
	Action    HistoryAction `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
}

// HistoryPage is one page of a book's audit trail, newest first, plus
// the full entry count for that book.
type HistoryPage struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int            `json:"total"`
}
