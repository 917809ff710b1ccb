package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/dashboard"
	"github.com/nicktill/carbondash/pkg/httpx"
)

// Handler handles export HTTP endpoints.
type Handler struct {
	exporter *Exporter
}

// NewHandler creates an export handler over renderer.
func NewHandler(renderer *dashboard.Renderer) *Handler {
	return &Handler{exporter: NewExporter(renderer)}
}

// HandleExport handles GET /v1/dashboard/emissions/export
// Query params:
//   - table: one of TableNames (default: top_usage)
//   - format: "json" or "csv" (default: csv)
//   - the emission dashboard's dimension params
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()
	opts := ExportOptions{
		Selection: dashboard.SelectionFromRequest(r, dashboard.PrimaryDims...),
		Table:     query.Get("table"),
		Format:    query.Get("format"),
	}
	if opts.Table == "" {
		opts.Table = TableTopUsage
	}
	if opts.Format == "" {
		opts.Format = config.ExportFormatCSV
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RenderTimeout)
	defer cancel()

	// buffer so a failed render can still answer with an error status
	var buf bytes.Buffer
	result, err := h.exporter.Export(ctx, &buf, opts)
	if err != nil {
		status := dashboard.StatusFor(err)
		if errors.Is(err, ErrUnknownTable) || errors.Is(err, ErrUnknownFormat) {
			status = http.StatusBadRequest
		}
		httpx.RespondError(w, status, fmt.Errorf("export failed: %w", err))
		return
	}

	timestamp := time.Now().Format("20060102-150405")
	if opts.Format == config.ExportFormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=carbondash-%s-%s.%s", opts.Table, timestamp, opts.Format))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Failed to write export: %v", err)
		return
	}

	log.Printf("Exported %s (%d rows, %s)", result.Table, result.RowsExported, result.Format)
}
