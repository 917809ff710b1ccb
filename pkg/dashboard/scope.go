package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
)

// Selection maps a dimension column to the value the user picked.
type Selection map[relation.Column]string

// With returns a copy of s with col set to value.
func (s Selection) With(col relation.Column, value string) Selection {
	out := make(Selection, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[col] = value
	return out
}

// Scopes of the two dashboards. Trend scopes leave out the axis dimension so
// it becomes the free grouping key.
var (
	PrimaryDims = []relation.Column{
		emission.ColYear,
		emission.ColMonth,
		emission.ColCity,
		emission.ColGender,
		emission.ColAgeGroup,
		emission.ColLifestyle,
	}
	TrendDims = []relation.Column{
		emission.ColYear,
		emission.ColCity,
		emission.ColGender,
		emission.ColAgeGroup,
		emission.ColLifestyle,
	}

	PeriodDims      = []relation.Column{emission.ColYearMonth, emission.ColCity}
	PeriodTrendDims = []relation.Column{emission.ColCity}
)

// BuildPredicate returns the conjunction col = selection[col] over dims.
// Every listed dimension needs a non-empty value. Values are typed by the
// source schema, so YEAR compares as an integer.
func BuildPredicate(sel Selection, dims ...relation.Column) (relation.Predicate, error) {
	terms := make([]relation.Predicate, 0, len(dims))
	for _, dim := range dims {
		raw := strings.TrimSpace(sel[dim])
		if raw == "" {
			return relation.Predicate{}, fmt.Errorf("%w: %s", ErrMissingSelection, dim)
		}
		v, err := typedValue(dim, raw)
		if err != nil {
			return relation.Predicate{}, err
		}
		terms = append(terms, relation.Eq(dim, v))
	}
	return relation.And(terms...), nil
}

func typedValue(dim relation.Column, raw string) (relation.Value, error) {
	f, ok := emission.Schema.Lookup(dim)
	if !ok {
		return relation.Null(), fmt.Errorf("%w: %s is not a dimension", ErrInvalidSelection, dim)
	}
	switch f.Kind {
	case relation.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return relation.Null(), fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSelection, dim, raw)
		}
		return relation.Int(n), nil
	case relation.KindString:
		return relation.String(raw), nil
	}
	return relation.Null(), fmt.Errorf("%w: %s is not filterable", ErrInvalidSelection, dim)
}
