package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/httpx"
	"github.com/nicktill/carbondash/pkg/storage"
)

// maxImportBody caps the request body of an import.
const maxImportBody = 64 << 20

// StorageChecker reports whether storage has room for more records.
type StorageChecker interface {
	CheckLimit() error
}

// Handler handles record imports over HTTP.
type Handler struct {
	importer       *Importer
	notify         func()
	storageChecker StorageChecker
}

// NewHandler creates an import handler writing to loader.
func NewHandler(loader storage.Loader) *Handler {
	return &Handler{importer: NewImporter(loader)}
}

// OnImport registers fn to run after every successful import.
func (h *Handler) OnImport(fn func()) { h.notify = fn }

// SetStorageChecker sets the storage limit checker. Imports are refused
// while it reports an error.
func (h *Handler) SetStorageChecker(checker StorageChecker) {
	h.storageChecker = checker
}

// HandleImport handles POST /v1/import. The body is CSV (text/csv) or JSON
// (application/json).
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if h.storageChecker != nil {
		if err := h.storageChecker.CheckLimit(); err != nil {
			log.Printf("Import refused: %v", err)
			httpx.RespondError(w, http.StatusInsufficientStorage, err)
			return
		}
	}

	format, err := formatFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		httpx.RespondError(w, http.StatusUnsupportedMediaType, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ImportTimeout)
	defer cancel()

	body := http.MaxBytesReader(w, r.Body, maxImportBody)
	result, err := h.importer.ImportFrom(ctx, body, format)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, ErrWriteFailed):
			status = http.StatusInternalServerError
		}
		httpx.RespondError(w, status, fmt.Errorf("import failed: %w", err))
		return
	}

	if len(result.Errors) > 0 {
		log.Printf("Import completed with %d invalid records", len(result.Errors))
		for i, e := range result.Errors {
			if i >= 10 {
				log.Printf("   ... and %d more", len(result.Errors)-10)
				break
			}
			log.Printf("   - %s", e)
		}
	}
	log.Printf("Imported %d records in %d batches (%s, %s kg)",
		result.RecordsImported, result.BatchesWritten, result.Periods, result.TotalKG)

	if h.notify != nil && result.RecordsImported > 0 {
		h.notify()
	}
	httpx.RespondJSON(w, http.StatusOK, result)
}

func formatFromContentType(ct string) (string, error) {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("%w: Content-Type %q", ErrUnknownFormat, ct)
	}
	switch mt {
	case "text/csv":
		return config.ExportFormatCSV, nil
	case "application/json":
		return config.ExportFormatJSON, nil
	}
	return "", fmt.Errorf("%w: Content-Type must be text/csv or application/json", ErrUnknownFormat)
}
