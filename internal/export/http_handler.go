package export

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.handleDownload(w, r)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "xlsx"
	}

	// Build in memory first so a mid-export failure still yields a
	// clean error response instead of a truncated download.
	var buf bytes.Buffer
	var contentType string
	switch format {
	case "csv":
		contentType = "text/csv"
		if err := h.service.WriteCSV(r.Context(), &buf); err != nil {
			http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
			return
		}
	case "xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if err := h.service.WriteXLSX(r.Context(), &buf); err != nil {
			http.Error(w, fmt.Sprintf("export failed: %v", err), http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("books-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	_, _ = w.Write(buf.Bytes())
}
