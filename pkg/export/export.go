// Package export writes dashboard tables as CSV or JSON.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/dashboard"
	"github.com/nicktill/carbondash/pkg/emission"
)

// Tables of the emission dashboard.
const (
	TableTotal       = "total"
	TableTrend       = "trend"
	TableByLifestyle = "by_lifestyle"
	TableByGender    = "by_gender"
	TableByAgeGroup  = "by_age_group"
	TableTopUsage    = "top_usage"
	TableReward      = "reward"
)

var (
	// ErrUnknownTable is returned for table names not in TableNames.
	ErrUnknownTable = errors.New("unknown table")

	// ErrUnknownFormat is returned for formats other than csv and json.
	ErrUnknownFormat = errors.New("unknown export format")
)

// Table is a labelled, display-ready grid of strings.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type tableFunc func(page *dashboard.EmissionPage) *Table

var tables = map[string]tableFunc{
	TableTotal:       totalTable,
	TableTrend:       trendTable,
	TableByLifestyle: matrixTable(TableByLifestyle, func(p *dashboard.EmissionPage) *dashboard.Matrix { return p.ByLifestyle }),
	TableByGender:    matrixTable(TableByGender, func(p *dashboard.EmissionPage) *dashboard.Matrix { return p.ByGender }),
	TableByAgeGroup:  matrixTable(TableByAgeGroup, func(p *dashboard.EmissionPage) *dashboard.Matrix { return p.ByAgeGroup }),
	TableTopUsage:    topUsageTable,
	TableReward:      rewardTable,
}

// TableNames returns the exportable table names, sorted.
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EmissionTable extracts one named table of page.
func EmissionTable(page *dashboard.EmissionPage, name string) (*Table, error) {
	fn, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return fn(page), nil
}

func kgLabel() string { return emission.Label(emission.ColCO2eKg) }

func totalTable(page *dashboard.EmissionPage) *Table {
	return &Table{
		Name:    TableTotal,
		Columns: []string{kgLabel(), "Rows"},
		Rows:    [][]string{{page.Total.KG.String(), fmt.Sprint(page.Total.Rows)}},
	}
}

func trendTable(page *dashboard.EmissionPage) *Table {
	t := &Table{Name: TableTrend, Columns: []string{emission.Label(emission.ColMonth), kgLabel()}, Rows: [][]string{}}
	for _, p := range page.Trend {
		t.Rows = append(t.Rows, []string{p.Key, p.KG.String()})
	}
	return t
}

// matrixTable flattens a pivot. Missing cells export as empty strings.
func matrixTable(name string, get func(*dashboard.EmissionPage) *dashboard.Matrix) tableFunc {
	return func(page *dashboard.EmissionPage) *Table {
		m := get(page)
		t := &Table{Name: name, Rows: [][]string{}}
		if m == nil {
			return t
		}
		t.Columns = append([]string{emission.Label(m.Axis)}, m.Columns...)
		for i, idx := range m.Index {
			row := make([]string, 0, len(m.Columns)+1)
			row = append(row, idx)
			for _, cell := range m.Cells[i] {
				if cell.State == dashboard.CellMissing {
					row = append(row, "")
					continue
				}
				row = append(row, cell.KG.String())
			}
			t.Rows = append(t.Rows, row)
		}
		return t
	}
}

func topUsageTable(page *dashboard.EmissionPage) *Table {
	t := &Table{
		Name:    TableTopUsage,
		Columns: []string{emission.Label(emission.ColUsage), kgLabel(), "Share (%)"},
		Rows:    [][]string{},
	}
	for _, r := range page.TopUsage {
		t.Rows = append(t.Rows, []string{r.Usage, r.KG.String(), r.Share.StringFixed(1)})
	}
	return t
}

func rewardTable(page *dashboard.EmissionPage) *Table {
	r := page.Reward
	return &Table{
		Name:    TableReward,
		Columns: []string{"State", "Points", "Reduction (kg)", "Current (kg)", "Previous (kg)", "Previous Period", "Message"},
		Rows: [][]string{{
			string(r.State), fmt.Sprint(r.Points), r.ReductionKG.String(), r.CurrentKG.String(),
			r.PreviousKG.String(), r.PreviousPeriod, r.Message,
		}},
	}
}

// Exporter renders the emission dashboard and writes one of its tables.
type Exporter struct {
	renderer *dashboard.Renderer
}

// NewExporter creates an exporter over renderer.
func NewExporter(renderer *dashboard.Renderer) *Exporter {
	return &Exporter{renderer: renderer}
}

// ExportOptions configures an export.
type ExportOptions struct {
	Selection dashboard.Selection
	Table     string
	// Format: "json" or "csv"
	Format string
}

// ExportResult contains stats about the export.
type ExportResult struct {
	Table        string    `json:"table"`
	Format       string    `json:"format"`
	RowsExported int       `json:"rows_exported"`
	ExportedAt   time.Time `json:"exported_at"`
}

// Export renders the dashboard for opts.Selection and writes opts.Table to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	if opts.Format != config.ExportFormatCSV && opts.Format != config.ExportFormatJSON {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	if _, ok := tables[opts.Table]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, opts.Table)
	}

	page, err := e.renderer.Emissions(ctx, opts.Selection)
	if err != nil {
		return nil, err
	}
	table, err := EmissionTable(page, opts.Table)
	if err != nil {
		return nil, err
	}

	if opts.Format == config.ExportFormatJSON {
		err = WriteJSON(w, table, page.Selection)
	} else {
		err = WriteCSV(w, table)
	}
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Table:        table.Name,
		Format:       opts.Format,
		RowsExported: len(table.Rows),
		ExportedAt:   time.Now(),
	}, nil
}

// WriteCSV writes t with its column labels as the header line.
func WriteCSV(w io.Writer, t *Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteJSON writes t wrapped with export metadata.
func WriteJSON(w io.Writer, t *Table, sel dashboard.Selection) error {
	data := struct {
		Metadata struct {
			ExportedAt time.Time           `json:"exported_at"`
			Selection  dashboard.Selection `json:"selection"`
			RowCount   int                 `json:"row_count"`
			Format     string              `json:"format"`
			Version    string              `json:"version"`
		} `json:"metadata"`
		Table *Table `json:"table"`
	}{Table: t}

	data.Metadata.ExportedAt = time.Now()
	data.Metadata.Selection = sel
	data.Metadata.RowCount = len(t.Rows)
	data.Metadata.Format = config.ExportFormatJSON
	data.Metadata.Version = "1.0"

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
