package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
)

// FormatFromPath picks the import format from a file extension.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return config.ExportFormatCSV, nil
	case ".json":
		return config.ExportFormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// RowError describes a CSV row whose cells could not be parsed.
type RowError struct {
	Line   int
	Column string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d, column %s: %v", e.Line, e.Column, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Decode reads records in the given format. Rows that could not be parsed
// are returned as rejects; the other rows still decode.
func Decode(r io.Reader, format string) ([]emission.Record, []RowError, error) {
	switch format {
	case config.ExportFormatCSV:
		return DecodeCSV(r)
	case config.ExportFormatJSON:
		records, err := DecodeJSON(r)
		return records, nil, err
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// DecodeJSON reads either a bare array of records or an object with a
// "records" array.
func DecodeJSON(r io.Reader) ([]emission.Record, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var records []emission.Record
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode JSON: %w", err)
		}
		return records, nil
	}

	var wrapped struct {
		Records []emission.Record `json:"records"`
	}
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return wrapped.Records, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !bytes.ContainsAny(b, " \t\r\n") {
			return b[0], nil
		}
		if _, err := br.ReadByte(); err != nil {
			return 0, err
		}
	}
}

type cellSetter func(r *emission.Record, v string) error

// csvColumns maps lower-cased header names, both column names and JSON
// field names, to setters.
var csvColumns = map[string]cellSetter{}

func init() {
	setters := map[relation.Column]cellSetter{
		emission.ColYear: func(r *emission.Record, v string) error {
			if v == "" {
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("year %q is not an integer", v)
			}
			r.Year = n
			return nil
		},
		emission.ColMonth:       func(r *emission.Record, v string) error { r.Month = v; return nil },
		emission.ColYearMonth:   func(r *emission.Record, v string) error { r.YearMonth = v; return nil },
		emission.ColCity:        func(r *emission.Record, v string) error { r.City = v; return nil },
		emission.ColGender:      func(r *emission.Record, v string) error { r.Gender = v; return nil },
		emission.ColAgeGroup:    func(r *emission.Record, v string) error { r.AgeGroup = v; return nil },
		emission.ColLifestyle:   func(r *emission.Record, v string) error { r.Lifestyle = v; return nil },
		emission.ColUsage:       func(r *emission.Record, v string) error { r.Usage = v; return nil },
		emission.ColSalesAmount: decimalSetter(func(r *emission.Record) *decimal.Decimal { return &r.SalesAmount }),
		emission.ColCO2eKg:      decimalSetter(func(r *emission.Record) *decimal.Decimal { return &r.CO2eKg }),
	}
	aliases := map[relation.Column]string{
		emission.ColYear:        "year",
		emission.ColMonth:       "month",
		emission.ColYearMonth:   "standard_year_month",
		emission.ColCity:        "city_name",
		emission.ColGender:      "gender",
		emission.ColAgeGroup:    "age_group",
		emission.ColLifestyle:   "lifestyle_kor",
		emission.ColUsage:       "usage_clean",
		emission.ColSalesAmount: "sales_amt",
		emission.ColCO2eKg:      "co2e_kg",
	}
	for col, set := range setters {
		csvColumns[strings.ToLower(string(col))] = set
		csvColumns[aliases[col]] = set
	}
}

func decimalSetter(field func(*emission.Record) *decimal.Decimal) cellSetter {
	return func(r *emission.Record, v string) error {
		if v == "" {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*field(r) = d
		return nil
	}
}

// DecodeCSV reads a header line and one record per row. Unknown columns are
// skipped; the CO2E_KG column is required. Cells are trimmed, and an empty
// cell stays NULL. A row with an unparseable cell is rejected on its own.
func DecodeCSV(r io.Reader) ([]emission.Record, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return []emission.Record{}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	setters := make([]cellSetter, len(header))
	hasCO2e := false
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		setters[i] = csvColumns[name]
		if name == "co2e_kg" {
			hasCO2e = true
		}
	}
	if !hasCO2e {
		return nil, nil, ErrMissingCO2e
	}

	records := make([]emission.Record, 0)
	var rejected []RowError
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		var rec emission.Record
		var rowErr *RowError
		for i, cell := range row {
			if i >= len(setters) || setters[i] == nil {
				continue
			}
			if err := setters[i](&rec, strings.TrimSpace(cell)); err != nil {
				rowErr = &RowError{Line: line, Column: strings.TrimPrefix(header[i], "\ufeff"), Err: err}
				break
			}
		}
		if rowErr != nil {
			rejected = append(rejected, *rowErr)
			continue
		}
		records = append(records, rec)
	}
	return records, rejected, nil
}
