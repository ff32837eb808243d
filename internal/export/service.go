// Package export renders the full catalog as a downloadable CSV or
// XLSX file.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/repository"
)

const (
	sheetName = "Books"

	// catalogPageSize is the window used to walk the catalog; the
	// export itself is unbounded.
	catalogPageSize = 500
)

var exportHeader = []string{"id", "title", "author", "isbn", "published_year", "status", "checked_out_at", "created_at", "updated_at"}

// Service builds catalog exports from the book store.
type Service struct {
	books repository.BookRepository
}

// NewService creates a new export service.
func NewService(books repository.BookRepository) *Service {
	return &Service{books: books}
}

// WriteCSV streams the whole catalog to w as CSV.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer) error {
	books, err := s.catalog(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, book := range books {
		if err := cw.Write(bookRecord(book)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()

	return cw.Error()
}

// WriteXLSX streams the whole catalog to w as an XLSX workbook.
func (s *Service) WriteXLSX(ctx context.Context, w io.Writer) error {
	books, err := s.catalog(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, book := range books {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		row := bookRecord(book)
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	return nil
}

// catalog walks every page of the book store. Total stays constant
// across pages, so the walk terminates even while writers are active.
func (s *Service) catalog(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	for offset := 0; ; offset += catalogPageSize {
		page, err := s.books.List(ctx, catalogPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog page: %w", err)
		}
		books = append(books, page.Books...)
		if offset+catalogPageSize >= page.Total || len(page.Books) == 0 {
			break
		}
	}
	return books, nil
}

func bookRecord(book domain.Book) []string {
	checkedOutAt := ""
	if book.CheckedOutAt != nil {
		checkedOutAt = book.CheckedOutAt.Format(time.RFC3339)
	}
	return []string{
		book.ID.String(),
		book.Title,
		book.Author,
		book.ISBN,
		strconv.Itoa(book.PublishedYear),
		string(book.Status),
		checkedOutAt,
		book.CreatedAt.Format(time.RFC3339),
		book.UpdatedAt.Format(time.RFC3339),
	}
}
