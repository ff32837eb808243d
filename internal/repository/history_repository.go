package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/libraryd/internal/domain"
)

const historyTable = "book_history"

var historyColumns = []any{"id", "book_id", "action", "created_at"}

// historyRepository implements HistoryRepository
type historyRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new history repository bound to db.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

// WithTx returns a copy of the repository that executes on tx.
func (r *historyRepository) WithTx(tx pgx.Tx) HistoryRepository {
	return &historyRepository{db: tx}
}

// Append inserts one immutable audit entry and returns it as persisted.
// It runs on whatever DBTX the repository is bound to and never opens a
// transaction of its own, so the lifecycle service can make the append
// atomic with the state change it records.
func (r *historyRepository) Append(ctx context.Context, bookID uuid.UUID, action domain.HistoryAction) (domain.HistoryEntry, error) {
	query, args, err := dialect.Insert(historyTable).
		Rows(goqu.Record{
			"id":         uuid.New(),
			"book_id":    bookID,
			"action":     action,
			"created_at": time.Now().UTC(),
		}).
		Returning(historyColumns...).
		Prepared(true).ToSQL()
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("failed to build history insert: %w", err)
	}

	entry, err := scanHistoryEntry(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("failed to append history entry: %w", err)
	}

	return entry, nil
}

// ListByBook retrieves one page of a book's audit trail, newest first.
// Total is the full entry count for that book regardless of the window.
// A book with no history yields an empty page, never an error.
func (r *historyRepository) ListByBook(ctx context.Context, bookID uuid.UUID, limit, offset int) (domain.HistoryPage, error) {
	limit, offset = normalizePage(limit, offset)

	query, args, err := dialect.From(historyTable).
		Select(historyColumns...).
		Where(goqu.C("book_id").Eq(bookID)).
		Order(goqu.C("created_at").Desc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		Prepared(true).ToSQL()
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []domain.HistoryEntry{}
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return domain.HistoryPage{}, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to read history rows: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM book_history WHERE book_id = $1`, bookID).Scan(&total); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("failed to count history: %w", err)
	}

	return domain.HistoryPage{Entries: entries, Total: total}, nil
}

func scanHistoryEntry(row pgx.Row) (domain.HistoryEntry, error) {
	var (
		e      domain.HistoryEntry
		action string
	)
	if err := row.Scan(&e.ID, &e.BookID, &action, &e.Timestamp); err != nil {
		return domain.HistoryEntry{}, err
	}
	e.Action = domain.HistoryAction(action)

	return e, nil
}
