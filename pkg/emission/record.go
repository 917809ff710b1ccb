// Package emission defines the carbon-emission record stored in the source
// relation and its column schema.
package emission

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/relation"
)

// Source relation columns.
const (
	ColYear        relation.Column = "YEAR"
	ColMonth       relation.Column = "MONTH"
	ColYearMonth   relation.Column = "STANDARD_YEAR_MONTH"
	ColCity        relation.Column = "CITY_NAME"
	ColGender      relation.Column = "GENDER"
	ColAgeGroup    relation.Column = "AGE_GROUP"
	ColLifestyle   relation.Column = "LIFESTYLE_KOR"
	ColUsage       relation.Column = "USAGE_CLEAN"
	ColSalesAmount relation.Column = "SALES_AMT"
	ColCO2eKg      relation.Column = "CO2E_KG"
)

// DefaultRelation is the name of the pre-aggregated source view.
const DefaultRelation = "CARD_CO2E_VW"

// Schema is the ordered column list of the source relation.
var Schema = relation.Schema{
	{Name: ColYear, Kind: relation.KindInt},
	{Name: ColMonth, Kind: relation.KindString},
	{Name: ColYearMonth, Kind: relation.KindString},
	{Name: ColCity, Kind: relation.KindString},
	{Name: ColGender, Kind: relation.KindString},
	{Name: ColAgeGroup, Kind: relation.KindString},
	{Name: ColLifestyle, Kind: relation.KindString},
	{Name: ColUsage, Kind: relation.KindString},
	{Name: ColSalesAmount, Kind: relation.KindDecimal},
	{Name: ColCO2eKg, Kind: relation.KindDecimal},
}

// Labels are display names for presentation tables.
var Labels = map[relation.Column]string{
	ColYear:        "Year",
	ColMonth:       "Month",
	ColYearMonth:   "Year-Month",
	ColCity:        "City",
	ColGender:      "Gender",
	ColAgeGroup:    "Age Group",
	ColLifestyle:   "Lifestyle",
	ColUsage:       "Usage Category",
	ColSalesAmount: "Sales Amount",
	ColCO2eKg:      "CO2e (kg)",
}

// Label returns the display name of col, or the column name itself.
func Label(col relation.Column) string {
	if l, ok := Labels[col]; ok {
		return l
	}
	return string(col)
}

// Validation errors.
var (
	ErrInvalidMonth     = errors.New("month must be \"01\"..\"12\"")
	ErrInvalidYearMonth = errors.New("year-month must be YYYY-MM")
	ErrNegativeCO2e     = errors.New("co2e_kg must be non-negative")
	ErrYearMismatch     = errors.New("year-month disagrees with year/month")
)

var (
	monthPattern     = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

// ValidMonth reports whether m is a zero-padded month "01".."12".
func ValidMonth(m string) bool { return monthPattern.MatchString(m) }

// ValidYearMonth reports whether ym has the form YYYY-MM.
func ValidYearMonth(ym string) bool { return yearMonthPattern.MatchString(ym) }

// Record is one row of the source relation. A zero Year or an empty string
// becomes a NULL cell.
type Record struct {
	Year        int             `json:"year"`
	Month       string          `json:"month"`
	YearMonth   string          `json:"standard_year_month"`
	City        string          `json:"city_name"`
	Gender      string          `json:"gender"`
	AgeGroup    string          `json:"age_group"`
	Lifestyle   string          `json:"lifestyle_kor"`
	Usage       string          `json:"usage_clean"`
	SalesAmount decimal.Decimal `json:"sales_amt"`
	CO2eKg      decimal.Decimal `json:"co2e_kg"`
}

// Validate checks the non-null cells of r.
func (r Record) Validate() error {
	if r.Month != "" && !ValidMonth(r.Month) {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, r.Month)
	}
	if r.YearMonth != "" {
		if !ValidYearMonth(r.YearMonth) {
			return fmt.Errorf("%w: %q", ErrInvalidYearMonth, r.YearMonth)
		}
		if r.Year != 0 && r.YearMonth[:4] != fmt.Sprintf("%04d", r.Year) {
			return fmt.Errorf("%w: %s vs year %d", ErrYearMismatch, r.YearMonth, r.Year)
		}
		if r.Month != "" && r.YearMonth[5:] != r.Month {
			return fmt.Errorf("%w: %s vs month %s", ErrYearMismatch, r.YearMonth, r.Month)
		}
	}
	if r.CO2eKg.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeCO2e, r.CO2eKg)
	}
	return nil
}

// Row converts r into a relation row over Schema.
func (r Record) Row() relation.Row {
	row := make(relation.Row, len(Schema))
	if r.Year != 0 {
		row[ColYear] = relation.Int(int64(r.Year))
	} else {
		row[ColYear] = relation.Null()
	}
	row[ColMonth] = str(r.Month)
	row[ColYearMonth] = str(r.YearMonth)
	row[ColCity] = str(r.City)
	row[ColGender] = str(r.Gender)
	row[ColAgeGroup] = str(r.AgeGroup)
	row[ColLifestyle] = str(r.Lifestyle)
	row[ColUsage] = str(r.Usage)
	row[ColSalesAmount] = relation.Decimal(r.SalesAmount)
	row[ColCO2eKg] = relation.Decimal(r.CO2eKg)
	return row
}

// Rows converts a batch of records.
func Rows(records []Record) []relation.Row {
	rows := make([]relation.Row, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	return rows
}

func str(s string) relation.Value {
	if s == "" {
		return relation.Null()
	}
	return relation.String(s)
}
