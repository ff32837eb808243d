// Package ingestion loads books in bulk from uploaded CSV or XLSX
// files. Rows are created one at a time through the book store, so a
// bad row (missing field, duplicate isbn) is reported and skipped while
// the rest of the file still lands. Infrastructure failures abort the
// import.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/repository"
)

// ErrUnsupportedFormat is returned when an uploaded file is not supported.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// StoreError reports a book store failure that aborted the import. It
// marks the fault boundary: every other error Import returns is caused
// by the upload itself.
type StoreError struct {
	RowNumber int
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to import row %d: %v", e.RowNumber, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// expected header columns, case-insensitive, any order
var requiredColumns = []string{"title", "author", "isbn", "published_year"}

// Service imports catalog rows into the book store.
type Service struct {
	books repository.BookRepository
}

// NewService creates a new ingestion service.
func NewService(books repository.BookRepository) *Service {
	return &Service{books: books}
}

// Request describes the import input.
type Request struct {
	FileName string
	Data     io.Reader
}

// RowError reports one rejected row. RowNumber is 1-based and counts
// the header row.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Result summarizes an import run.
type Result struct {
	CreatedIDs []uuid.UUID `json:"createdIds"`
	Created    int         `json:"created"`
	Failed     int         `json:"failed"`
	Errors     []RowError  `json:"errors,omitempty"`
}

// Import parses the upload and creates one book per data row.
func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	rows, err := parseTable(req.FileName, req.Data)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{}, errors.New("no rows found in file")
	}

	columns, err := mapHeader(rows[0])
	if err != nil {
		return Result{}, err
	}

	result := Result{CreatedIDs: []uuid.UUID{}}
	for i, row := range rows[1:] {
		rowNumber := i + 2
		if isEmptyRow(row) {
			continue
		}

		input, rowErr := buildInput(row, columns)
		if rowErr != "" {
			result.Failed++
			result.Errors = append(result.Errors, RowError{RowNumber: rowNumber, Message: rowErr})
			continue
		}

		book, err := s.books.Create(ctx, input)
		if err != nil {
			if isRowScoped(err) {
				result.Failed++
				result.Errors = append(result.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
				continue
			}
			return Result{}, &StoreError{RowNumber: rowNumber, Err: err}
		}

		result.Created++
		result.CreatedIDs = append(result.CreatedIDs, book.ID)
	}

	return result, nil
}

// isRowScoped reports whether err condemns only the offending row.
func isRowScoped(err error) bool {
	var missing domain.MissingFieldError
	var duplicate domain.DuplicateISBNError
	return errors.As(err, &missing) || errors.As(err, &duplicate)
}

func buildInput(row []string, columns map[string]int) (domain.NewBookInput, string) {
	get := func(name string) string {
		idx := columns[name]
		if idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	input := domain.NewBookInput{
		Title:  get("title"),
		Author: get("author"),
		ISBN:   get("isbn"),
	}

	if raw := get("published_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return domain.NewBookInput{}, fmt.Sprintf("invalid published_year %q", raw)
		}
		input.PublishedYear = &year
	}

	return input, ""
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for idx, value := range header {
		name := strings.ToLower(strings.TrimSpace(value))
		if name == "" {
			continue
		}
		if _, exists := columns[name]; !exists {
			columns[name] = idx
		}
	}

	for _, required := range requiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	return columns, nil
}

func isEmptyRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

func parseTable(fileName string, data io.Reader) ([][]string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	return records, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return rows, nil
}
