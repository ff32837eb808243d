// Package api exposes the lending core over REST. Handlers translate
// typed domain errors to response codes with errors.As; no string
// matching on messages. Unrecognized failures pass through as 500s.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/libraryd/internal/domain"
	"github.com/rpattn/libraryd/internal/repository"
)

// Circulator is the slice of the circulation service the handler needs.
type Circulator interface {
	Checkout(ctx context.Context, id uuid.UUID) (domain.Book, error)
	Return(ctx context.Context, id uuid.UUID) (domain.Book, error)
}

type Handler struct {
	books       repository.BookRepository
	history     repository.HistoryRepository
	circulation Circulator
}

// NewHTTPHandler wires the book routes onto a fresh mux.
func NewHTTPHandler(books repository.BookRepository, history repository.HistoryRepository, circulation Circulator) http.Handler {
	h := &Handler{books: books, history: history, circulation: circulation}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/books", h.handleCreate)
	mux.HandleFunc("GET /api/books", h.handleList)
	mux.HandleFunc("GET /api/books/{id}", h.handleGet)
	mux.HandleFunc("PATCH /api/books/{id}", h.handleUpdate)
	mux.HandleFunc("POST /api/books/{id}/checkout", h.handleCheckout)
	mux.HandleFunc("POST /api/books/{id}/return", h.handleReturn)
	mux.HandleFunc("GET /api/books/{id}/history", h.handleHistory)

	return mux
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var input domain.NewBookInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	book, err := h.books.Create(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	page, err := h.books.List(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookID(w, r)
	if !ok {
		return
	}

	book, err := h.books.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if book == nil {
		http.Error(w, domain.BookNotFoundError{ID: id}.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookID(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()
	var update domain.BookUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	book, err := h.books.Update(r.Context(), id, update)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if book == nil {
		http.Error(w, domain.BookNotFoundError{ID: id}.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookID(w, r)
	if !ok {
		return
	}

	book, err := h.circulation.Checkout(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookID(w, r)
	if !ok {
		return
	}

	book, err := h.circulation.Return(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseBookID(w, r)
	if !ok {
		return
	}
	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	page, err := h.history.ListByBook(r.Context(), id, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseBookID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid book id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func parsePagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = repository.DefaultPageLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return 0, 0, false
		}
		limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return 0, 0, false
		}
		offset = parsed
	}
	return limit, offset, true
}

// writeDomainError maps the closed domain error set to status codes:
// 400 missing field, 404 not found, 409 duplicate isbn or invalid
// transition, 500 otherwise.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		missing    domain.MissingFieldError
		duplicate  domain.DuplicateISBNError
		notFound   domain.BookNotFoundError
		transition domain.InvalidTransitionError
	)
	switch {
	case errors.As(err, &missing):
		http.Error(w, missing.Error(), http.StatusBadRequest)
	case errors.As(err, &duplicate):
		http.Error(w, duplicate.Error(), http.StatusConflict)
	case errors.As(err, &notFound):
		http.Error(w, notFound.Error(), http.StatusNotFound)
	case errors.As(err, &transition):
		http.Error(w, transition.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
