package repository

import (
	"context"
	"time"

	"github.com/rpattn/libraryd/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the slice of a pgx pool or transaction the repositories
// execute against. Both *pgxpool.Pool and pgx.Tx satisfy it, which is
// how a repository method can run inside a caller-owned transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BookRepository defines the interface for book catalog operations.
// Lookup methods return a nil book, not an error, for a missing row.
type BookRepository interface {
	Create(ctx context.Context, input domain.NewBookInput) (domain.Book, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	List(ctx context.Context, limit, offset int) (domain.BookPage, error)
	Update(ctx context.Context, id uuid.UUID, update domain.BookUpdate) (*domain.Book, error)

	// Lifecycle support. GetForUpdate locks the row for the duration of
	// the surrounding transaction; SetStatus writes the status column
	// pair and refreshes updated_at.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.BookStatus, checkedOutAt *time.Time) (domain.Book, error)

	// WithTx rebinds the repository to an open transaction.
	WithTx(tx pgx.Tx) BookRepository
}

// HistoryRepository defines the interface for the lifecycle audit trail.
// Append never opens its own transaction; bind the repository to a
// pgx.Tx to make the write atomic with a state change.
type HistoryRepository interface {
	Append(ctx context.Context, bookID uuid.UUID, action domain.HistoryAction) (domain.HistoryEntry, error)
	ListByBook(ctx context.Context, bookID uuid.UUID, limit, offset int) (domain.HistoryPage, error)

	// WithTx rebinds the repository to an open transaction.
	WithTx(tx pgx.Tx) HistoryRepository
}
