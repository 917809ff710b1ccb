package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

// Importer validates records and writes them to a loader in batches.
type Importer struct {
	loader    storage.Loader
	batchSize int
}

// NewImporter creates an importer writing to loader.
func NewImporter(loader storage.Loader) *Importer {
	return &Importer{loader: loader, batchSize: config.ImportBatchSize}
}

// ImportResult contains stats about an import.
type ImportResult struct {
	RecordsImported int             `json:"records_imported"`
	RecordsSkipped  int             `json:"records_skipped"`
	BatchesWritten  int             `json:"batches_written"`
	TotalKG         decimal.Decimal `json:"total_kg"`
	Periods         string          `json:"periods"`
	ImportedAt      time.Time       `json:"imported_at"`
	Errors          []string        `json:"errors,omitempty"`
}

// ImportFrom decodes r in format and imports the records. Rows that failed
// to decode count as skipped.
func (im *Importer) ImportFrom(ctx context.Context, r io.Reader, format string) (*ImportResult, error) {
	records, rejected, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	result, err := im.Import(ctx, records)
	if err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		errs := make([]string, 0, len(rejected)+len(result.Errors))
		for _, re := range rejected {
			errs = append(errs, re.Error())
		}
		result.Errors = append(errs, result.Errors...)
		result.RecordsSkipped += len(rejected)
	}
	return result, nil
}

// Import writes the valid records. Invalid records are skipped and reported
// in the result; a write failure aborts the import.
func (im *Importer) Import(ctx context.Context, records []emission.Record) (*ImportResult, error) {
	if len(records) > config.MaxImportRecords {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyRecords, len(records))
	}

	result := &ImportResult{TotalKG: decimal.Zero, Periods: "empty"}

	valid := make([]emission.Record, 0, len(records))
	for i, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		valid = append(valid, rec)
	}
	result.RecordsSkipped = len(records) - len(valid)

	for i := 0; i < len(valid); i += im.batchSize {
		end := i + im.batchSize
		if end > len(valid) {
			end = len(valid)
		}
		if err := im.loader.Write(ctx, valid[i:end]); err != nil {
			return nil, fmt.Errorf("%w: batch %d: %w", ErrWriteFailed, result.BatchesWritten, err)
		}
		result.BatchesWritten++
		telemetry.RecordImport(end - i)
	}

	var first, last string
	for _, rec := range valid {
		result.TotalKG = result.TotalKG.Add(rec.CO2eKg)
		ym := rec.YearMonth
		if ym == "" {
			continue
		}
		if first == "" || ym < first {
			first = ym
		}
		if ym > last {
			last = ym
		}
	}
	if first != "" {
		result.Periods = fmt.Sprintf("%s to %s", first, last)
	}

	result.RecordsImported = len(valid)
	result.ImportedAt = time.Now()
	return result, nil
}
