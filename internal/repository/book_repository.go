package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/libraryd/internal/domain"
)

const (
	booksTable = "books"

	// DefaultPageLimit is the page size used when a caller supplies none.
	DefaultPageLimit = 20

	pgUniqueViolation = "23505"
)

var dialect = goqu.Dialect("postgres")

var bookColumns = []any{"id", "title", "author", "isbn", "published_year", "status", "checked_out_at", "created_at", "updated_at"}

// bookRepository implements BookRepository
type bookRepository struct {
	db DBTX
}

// NewBookRepository creates a new book repository bound to db, which is
// normally the shared pool.
func NewBookRepository(db DBTX) BookRepository {
	return &bookRepository{db: db}
}

// WithTx returns a copy of the repository that executes on tx.
func (r *bookRepository) WithTx(tx pgx.Tx) BookRepository {
	return &bookRepository{db: tx}
}

// Create validates input, assigns an id and inserts the book. A
// uniqueness violation on isbn surfaces as domain.DuplicateISBNError.
func (r *bookRepository) Create(ctx context.Context, input domain.NewBookInput) (domain.Book, error) {
	if err := input.Validate(); err != nil {
		return domain.Book{}, err
	}

	now := time.Now().UTC()
	query, args, err := dialect.Insert(booksTable).
		Rows(goqu.Record{
			"id":             uuid.New(),
			"title":          input.Title,
			"author":         input.Author,
			"isbn":           input.ISBN,
			"published_year": *input.PublishedYear,
			"status":         domain.BookStatusAvailable,
			"created_at":     now,
			"updated_at":     now,
		}).
		Returning(bookColumns...).
		Prepared(true).ToSQL()
	if err != nil {
		return domain.Book{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	book, err := scanBook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Book{}, domain.DuplicateISBNError{ISBN: input.ISBN}
		}
		return domain.Book{}, fmt.Errorf("failed to create book: %w", err)
	}

	return book, nil
}

// GetByID retrieves a book by id. A missing row yields (nil, nil).
func (r *bookRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return r.getByID(ctx, id, false)
}

// GetForUpdate retrieves a book by id with a row lock. Only meaningful
// on a repository bound to a transaction.
func (r *bookRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	return r.getByID(ctx, id, true)
}

func (r *bookRepository) getByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.Book, error) {
	ds := dialect.From(booksTable).
		Select(bookColumns...).
		Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(goqu.Wait)
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	book, err := scanBook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	return &book, nil
}

// List retrieves one catalog page ordered by created_at descending.
// Total is always the unfiltered row count, independent of the window.
func (r *bookRepository) List(ctx context.Context, limit, offset int) (domain.BookPage, error) {
	limit, offset = normalizePage(limit, offset)

	query, args, err := dialect.From(booksTable).
		Select(bookColumns...).
		Order(goqu.C("created_at").Desc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		Prepared(true).ToSQL()
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return domain.BookPage{}, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	books := []domain.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return domain.BookPage{}, fmt.Errorf("failed to scan book row: %w", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return domain.BookPage{}, fmt.Errorf("failed to read book rows: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return domain.BookPage{}, fmt.Errorf("failed to count books: %w", err)
	}

	return domain.BookPage{Books: books, Total: total}, nil
}

// Update changes only the fields present in update; updated_at is
// refreshed unconditionally. A missing row yields (nil, nil).
func (r *bookRepository) Update(ctx context.Context, id uuid.UUID, update domain.BookUpdate) (*domain.Book, error) {
	record := goqu.Record{"updated_at": time.Now().UTC()}
	if update.Title != nil {
		record["title"] = *update.Title
	}
	if update.Author != nil {
		record["author"] = *update.Author
	}
	if update.ISBN != nil {
		record["isbn"] = *update.ISBN
	}
	if update.PublishedYear != nil {
		record["published_year"] = *update.PublishedYear
	}

	query, args, err := dialect.Update(booksTable).
		Set(record).
		Where(goqu.C("id").Eq(id)).
		Returning(bookColumns...).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	book, err := scanBook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isUniqueViolation(err) {
			isbn := ""
			if update.ISBN != nil {
				isbn = *update.ISBN
			}
			return nil, domain.DuplicateISBNError{ISBN: isbn}
		}
		return nil, fmt.Errorf("failed to update book: %w", err)
	}

	return &book, nil
}

// SetStatus writes the status/checked_out_at column pair and refreshes
// updated_at. It performs no state checking; that is the lifecycle
// service's job, inside its transaction.
func (r *bookRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.BookStatus, checkedOutAt *time.Time) (domain.Book, error) {
	query, args, err := dialect.Update(booksTable).
		Set(goqu.Record{
			"status":         status,
			"checked_out_at": checkedOutAt,
			"updated_at":     time.Now().UTC(),
		}).
		Where(goqu.C("id").Eq(id)).
		Returning(bookColumns...).
		Prepared(true).ToSQL()
	if err != nil {
		return domain.Book{}, fmt.Errorf("failed to build status update query: %w", err)
	}

	book, err := scanBook(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Book{}, domain.BookNotFoundError{ID: id}
		}
		return domain.Book{}, fmt.Errorf("failed to set book status: %w", err)
	}

	return book, nil
}

func scanBook(row pgx.Row) (domain.Book, error) {
	var (
		b      domain.Book
		status string
	)
	err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Author,
		&b.ISBN,
		&b.PublishedYear,
		&status,
		&b.CheckedOutAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return domain.Book{}, err
	}
	b.Status = domain.BookStatus(status)

	return b, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
