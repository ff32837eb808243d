// Package circulation enforces the two-state lending lifecycle:
// checkout moves a book from available to checked_out, return moves it
// back. No other transitions exist. Every transition and its audit
// entry commit in one transaction.
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/libraryd/internal/db"
	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/repository"
)

// Service runs lifecycle transitions against the shared connection.
type Service struct {
	conn    *db.Connection
	books   repository.BookRepository
	history repository.HistoryRepository
}

// NewService creates a new circulation service.
func NewService(conn *db.Connection, books repository.BookRepository, history repository.HistoryRepository) *Service {
	return &Service{
		conn:    conn,
		books:   books,
		history: history,
	}
}

// Checkout transitions an available book to checked_out and appends the
// matching audit entry atomically. A missing book yields
// domain.BookNotFoundError; a book already lent out yields
// domain.InvalidTransitionError. Rejected callers retry explicitly if
// they want to; the service never retries internally.
func (s *Service) Checkout(ctx context.Context, id uuid.UUID) (domain.Book, error) {
	return s.transition(ctx, id, domain.BookStatusAvailable, func(now time.Time) (domain.BookStatus, *time.Time, domain.HistoryAction, string) {
		return domain.BookStatusCheckedOut, &now, domain.HistoryActionCheckedOut, domain.ReasonAlreadyCheckedOut
	})
}

// Return transitions a checked_out book back to available, clearing
// checked_out_at, and appends the matching audit entry atomically.
func (s *Service) Return(ctx context.Context, id uuid.UUID) (domain.Book, error) {
	return s.transition(ctx, id, domain.BookStatusCheckedOut, func(now time.Time) (domain.BookStatus, *time.Time, domain.HistoryAction, string) {
		return domain.BookStatusAvailable, nil, domain.HistoryActionReturned, domain.ReasonNotCheckedOut
	})
}

// transition is the shared read-check-write-audit sequence. The row is
// locked with FOR UPDATE for the duration of the transaction, so two
// concurrent transitions on the same id serialize: the loser observes
// the committed state and is rejected.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	required domain.BookStatus,
	plan func(now time.Time) (domain.BookStatus, *time.Time, domain.HistoryAction, string),
) (domain.Book, error) {
	var book domain.Book

	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		books := s.books.WithTx(tx)

		current, err := books.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.BookNotFoundError{ID: id}
		}

		next, checkedOutAt, action, rejectReason := plan(time.Now().UTC())
		if current.Status != required {
			return domain.InvalidTransitionError{Reason: rejectReason}
		}

		updated, err := books.SetStatus(ctx, id, next, checkedOutAt)
		if err != nil {
			return err
		}

		if _, err := s.history.WithTx(tx).Append(ctx, id, action); err != nil {
			return err
		}

		book = updated
		return nil
	})
	if err != nil {
		return domain.Book{}, err
	}

	return book, nil
}
