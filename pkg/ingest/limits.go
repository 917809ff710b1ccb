package ingest

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/emission"
)

var (
	// ErrTooManyRecords is returned when an import holds more records than allowed
	ErrTooManyRecords = fmt.Errorf("too many records in import (max %d)", config.MaxImportRecords)

	// ErrValueTooLong is returned when a dimension value is too long
	ErrValueTooLong = fmt.Errorf("dimension value too long (max %d chars)", config.MaxDimensionValueLen)

	// ErrMissingCO2e is returned when a CSV header has no CO2E_KG column
	ErrMissingCO2e = fmt.Errorf("missing %s column", emission.ColCO2eKg)

	// ErrUnknownFormat is returned for import formats other than csv and json
	ErrUnknownFormat = errors.New("unknown import format")

	// ErrWriteFailed is returned when the loader rejects a batch
	ErrWriteFailed = errors.New("failed to write records")
)

// ValidateRecord checks r's cells and dimension lengths.
func ValidateRecord(r emission.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}

	dims := map[string]string{
		"city_name":     r.City,
		"gender":        r.Gender,
		"age_group":     r.AgeGroup,
		"lifestyle_kor": r.Lifestyle,
		"usage_clean":   r.Usage,
	}
	for name, v := range dims {
		if n := utf8.RuneCountInString(v); n > config.MaxDimensionValueLen {
			return fmt.Errorf("%w: %s has %d chars", ErrValueTooLong, name, n)
		}
	}
	return nil
}
