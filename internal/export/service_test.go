package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/export"
	"github.com/rpattn/libraryd/internal/repository"
)

// pagedBookStore serves a fixed catalog through List so the export's
// page walk is exercised for real.
type pagedBookStore struct {
	books     []domain.Book
	listCalls int
}

func (p *pagedBookStore) List(_ context.Context, limit, offset int) (domain.BookPage, error) {
	p.listCalls++
	end := offset + limit
	if offset > len(p.books) {
		offset = len(p.books)
	}
	if end > len(p.books) {
		end = len(p.books)
	}
	return domain.BookPage{Books: p.books[offset:end], Total: len(p.books)}, nil
}

func (p *pagedBookStore) Create(_ context.Context, _ domain.NewBookInput) (domain.Book, error) {
	return domain.Book{}, nil
}

func (p *pagedBookStore) GetByID(_ context.Context, _ uuid.UUID) (*domain.Book, error) {
	return nil, nil
}

func (p *pagedBookStore) Update(_ context.Context, _ uuid.UUID, _ domain.BookUpdate) (*domain.Book, error) {
	return nil, nil
}

func (p *pagedBookStore) GetForUpdate(_ context.Context, _ uuid.UUID) (*domain.Book, error) {
	return nil, nil
}

func (p *pagedBookStore) SetStatus(_ context.Context, _ uuid.UUID, _ domain.BookStatus, _ *time.Time) (domain.Book, error) {
	return domain.Book{}, nil
}

func (p *pagedBookStore) WithTx(_ pgx.Tx) repository.BookRepository { return p }

func catalogOf(n int) []domain.Book {
	created := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	books := make([]domain.Book, 0, n)
	for i := 0; i < n; i++ {
		books = append(books, domain.Book{
			ID:            uuid.New(),
			Title:         fmt.Sprintf("Book %03d", i),
			Author:        "Author",
			ISBN:          fmt.Sprintf("isbn-%03d", i),
			PublishedYear: 1990 + i%30,
			Status:        domain.BookStatusAvailable,
			CreatedAt:     created,
			UpdatedAt:     created,
		})
	}
	return books
}

func TestWriteCSV(t *testing.T) {
	checkedOut := time.Date(2026, 8, 15, 10, 30, 0, 0, time.UTC)
	store := &pagedBookStore{books: catalogOf(3)}
	store.books[1].Status = domain.BookStatusCheckedOut
	store.books[1].CheckedOutAt = &checkedOut

	var buf bytes.Buffer
	svc := export.NewService(store)
	require.NoError(t, svc.WriteCSV(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, []string{"id", "title", "author", "isbn", "published_year", "status", "checked_out_at", "created_at", "updated_at"}, records[0])
	assert.Equal(t, store.books[0].ID.String(), records[1][0])
	assert.Equal(t, "Book 000", records[1][1])
	assert.Equal(t, "available", records[1][5])
	assert.Empty(t, records[1][6])

	assert.Equal(t, "checked_out", records[2][5])
	assert.Equal(t, "2026-08-15T10:30:00Z", records[2][6])
	assert.Equal(t, "2026-08-01T09:00:00Z", records[2][7])
}

func TestWriteCSV_EmptyCatalog(t *testing.T) {
	var buf bytes.Buffer
	svc := export.NewService(&pagedBookStore{})
	require.NoError(t, svc.WriteCSV(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1, "header only")
}

func TestWriteCSV_WalksAllPages(t *testing.T) {
	// 1200 rows forces three page loads at the 500-row window.
	store := &pagedBookStore{books: catalogOf(1200)}

	var buf bytes.Buffer
	svc := export.NewService(store)
	require.NoError(t, svc.WriteCSV(context.Background(), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1201)
	assert.Equal(t, 3, store.listCalls)
}

func TestWriteXLSX(t *testing.T) {
	store := &pagedBookStore{books: catalogOf(2)}

	var buf bytes.Buffer
	svc := export.NewService(store)
	require.NoError(t, svc.WriteXLSX(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Books"}, f.GetSheetList())

	rows, err := f.GetRows("Books")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "Book 000", rows[1][1])
	assert.Equal(t, store.books[1].ID.String(), rows[2][0])
	assert.Equal(t, "available", rows[1][5])
}
