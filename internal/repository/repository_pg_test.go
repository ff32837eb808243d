package repository_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/libraryd/internal/db"
	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/repository"
	"github.com/rpattn/libraryd/migrations"
)

// newTestConn connects to the database configured via DB_* env vars,
// applies the schema and empties both tables. Integration tests are
// opt-in.
func newTestConn(t *testing.T) *db.Connection {
	t.Helper()
	if os.Getenv("LIBRARYD_TEST_DB") == "" {
		t.Skip("set LIBRARYD_TEST_DB=1 to run database integration tests")
	}

	cfg := db.DefaultConfig()
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		require.NoError(t, err)
		cfg.Port = port
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DB_DBNAME"); v != "" {
		cfg.DBName = v
	}

	ctx := context.Background()
	conn, err := db.NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, db.ApplyMigrations(ctx, conn, migrations.Files))
	_, err = conn.Pool.Exec(ctx, `TRUNCATE book_history, books`)
	require.NoError(t, err)

	return conn
}

func yearPtr(y int) *int { return &y }

func seedBook(t *testing.T, books repository.BookRepository, isbn string) domain.Book {
	t.Helper()
	book, err := books.Create(context.Background(), domain.NewBookInput{
		Title:         "Title " + isbn,
		Author:        "Author",
		ISBN:          isbn,
		PublishedYear: yearPtr(2001),
	})
	require.NoError(t, err)
	return book
}

func TestBookCreateAndGet(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)
	ctx := context.Background()

	created, err := books.Create(ctx, domain.NewBookInput{
		Title:         "Dune",
		Author:        "Frank Herbert",
		ISBN:          "978-0-441-01359-3",
		PublishedYear: yearPtr(1965),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, domain.BookStatusAvailable, created.Status)
	assert.Nil(t, created.CheckedOutAt)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := books.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, 1965, got.PublishedYear)
}

func TestBookCreate_DuplicateISBN(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)

	seedBook(t, books, "978-0-441-01359-3")

	_, err := books.Create(context.Background(), domain.NewBookInput{
		Title:         "Dune Again",
		Author:        "Frank Herbert",
		ISBN:          "978-0-441-01359-3",
		PublishedYear: yearPtr(1965),
	})
	require.Error(t, err)

	var dup domain.DuplicateISBNError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "978-0-441-01359-3", dup.ISBN)
}

func TestBookGet_Absent(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)

	got, err := books.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBookList_Pagination(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)
	ctx := context.Background()

	const total = 25
	want := map[uuid.UUID]bool{}
	for i := 0; i < total; i++ {
		book := seedBook(t, books, fmt.Sprintf("isbn-%03d", i))
		want[book.ID] = true
	}

	seen := map[uuid.UUID]bool{}
	for offset := 0; offset < total; offset += 10 {
		page, err := books.List(ctx, 10, offset)
		require.NoError(t, err)
		assert.Equal(t, total, page.Total, "total is the unfiltered count on every page")

		for _, book := range page.Books {
			assert.False(t, seen[book.ID], "book %s appeared on two pages", book.ID)
			seen[book.ID] = true
		}
	}
	assert.Equal(t, want, seen, "pages together cover the whole catalog")

	page, err := books.List(ctx, 10, total)
	require.NoError(t, err)
	assert.Empty(t, page.Books)
	assert.Equal(t, total, page.Total)
}

func TestBookUpdate_Partial(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)
	ctx := context.Background()

	created := seedBook(t, books, "isbn-update")

	title := "Revised Title"
	updated, err := books.Update(ctx, created.ID, domain.BookUpdate{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, updated)

	assert.Equal(t, "Revised Title", updated.Title)
	assert.Equal(t, created.Author, updated.Author)
	assert.Equal(t, created.ISBN, updated.ISBN)
	assert.Equal(t, created.PublishedYear, updated.PublishedYear)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
}

func TestBookUpdate_Absent(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)

	title := "ghost"
	updated, err := books.Update(context.Background(), uuid.New(), domain.BookUpdate{Title: &title})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestBookUpdate_DuplicateISBN(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)

	seedBook(t, books, "isbn-taken")
	other := seedBook(t, books, "isbn-free")

	taken := "isbn-taken"
	_, err := books.Update(context.Background(), other.ID, domain.BookUpdate{ISBN: &taken})
	var dup domain.DuplicateISBNError
	require.ErrorAs(t, err, &dup)
}

func TestBookSetStatus(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)
	ctx := context.Background()

	created := seedBook(t, books, "isbn-status")

	now := time.Now().UTC().Truncate(time.Microsecond)
	out, err := books.SetStatus(ctx, created.ID, domain.BookStatusCheckedOut, &now)
	require.NoError(t, err)
	assert.Equal(t, domain.BookStatusCheckedOut, out.Status)
	require.NotNil(t, out.CheckedOutAt)
	assert.True(t, out.CheckedOutAt.Equal(now))

	back, err := books.SetStatus(ctx, created.ID, domain.BookStatusAvailable, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BookStatusAvailable, back.Status)
	assert.Nil(t, back.CheckedOutAt)
}

func TestBookSetStatus_Unknown(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)

	id := uuid.New()
	_, err := books.SetStatus(context.Background(), id, domain.BookStatusCheckedOut, nil)
	var notFound domain.BookNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, id, notFound.ID)
}

func TestHistoryAppendAndList(t *testing.T) {
	conn := newTestConn(t)
	books := repository.NewBookRepository(conn.Pool)
	history := repository.NewHistoryRepository(conn.Pool)
	ctx := context.Background()

	book := seedBook(t, books, "isbn-history")

	first, err := history.Append(ctx, book.ID, domain.HistoryActionCheckedOut)
	require.NoError(t, err)
	assert.Equal(t, book.ID, first.BookID)
	assert.Equal(t, domain.HistoryActionCheckedOut, first.Action)

	_, err = history.Append(ctx, book.ID, domain.HistoryActionReturned)
	require.NoError(t, err)

	page, err := history.ListByBook(ctx, book.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 2)

	// Newest first.
	assert.Equal(t, domain.HistoryActionReturned, page.Entries[0].Action)
	assert.Equal(t, domain.HistoryActionCheckedOut, page.Entries[1].Action)
	assert.False(t, page.Entries[0].Timestamp.Before(page.Entries[1].Timestamp))

	window, err := history.ListByBook(ctx, book.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, window.Total)
	require.Len(t, window.Entries, 1)
	assert.Equal(t, domain.HistoryActionReturned, window.Entries[0].Action)
}

func TestHistoryList_UnknownBook(t *testing.T) {
	conn := newTestConn(t)
	history := repository.NewHistoryRepository(conn.Pool)

	page, err := history.ListByBook(context.Background(), uuid.New(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, 0, page.Total)
}
