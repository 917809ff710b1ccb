package dashboard

import (
	"context"

	"github.com/samber/lo"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
)

// Executor materializes plans. storage.Session satisfies it.
type Executor interface {
	Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error)
}

// Option is the selectable value list of one dimension.
type Option struct {
	Dimension relation.Column `json:"dimension"`
	Param     string          `json:"param"`
	Label     string          `json:"label"`
	Values    []string        `json:"values"`
}

// Options lists a dashboard's dimensions in display order.
type Options []Option

// Values returns the option list of col, or nil.
func (o Options) Values(col relation.Column) []string {
	for _, opt := range o {
		if opt.Dimension == col {
			return opt.Values
		}
	}
	return nil
}

// Empty reports whether some dimension has nothing to select.
func (o Options) Empty() bool {
	return lo.SomeBy(o, func(opt Option) bool { return len(opt.Values) == 0 })
}

// Params are the query parameter names of the filterable dimensions.
var Params = map[relation.Column]string{
	emission.ColYear:      "year",
	emission.ColMonth:     "month",
	emission.ColYearMonth: "year_month",
	emission.ColCity:      "city",
	emission.ColGender:    "gender",
	emission.ColAgeGroup:  "age_group",
	emission.ColLifestyle: "lifestyle",
}

// Catalog lists the distinct values of dimensions in the source relation.
// NULL cells are excluded from every list.
type Catalog struct {
	Relation string
}

// DistinctValues returns the sorted distinct non-null values of col.
func (c Catalog) DistinctValues(ctx context.Context, exec Executor, col relation.Column) ([]string, error) {
	return c.DistinctValuesWithin(ctx, exec, col, relation.Predicate{})
}

// DistinctValuesWithin is DistinctValues over the rows matching scope.
func (c Catalog) DistinctValuesWithin(ctx context.Context, exec Executor, col relation.Column, scope relation.Predicate) ([]string, error) {
	rel := relation.Scan(c.Relation).
		Filter(scope).
		Distinct(col).
		Sort(relation.Asc(col))

	rows, err := materialize(ctx, exec, "catalog", rel)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(rows))
	for _, r := range rows {
		if v := r.Get(col); !v.IsNull() {
			values = append(values, v.String())
		}
	}
	return values, nil
}

// Options collects the emission dashboard's option lists. When year is set
// the month list only holds months present in that year.
func (c Catalog) Options(ctx context.Context, exec Executor, year string) (Options, error) {
	var monthScope relation.Predicate
	if year != "" {
		p, err := BuildPredicate(Selection{emission.ColYear: year}, emission.ColYear)
		if err != nil {
			return nil, err
		}
		monthScope = p
	}

	opts := make(Options, 0, len(PrimaryDims))
	for _, dim := range PrimaryDims {
		scope := relation.Predicate{}
		if dim == emission.ColMonth {
			scope = monthScope
		}
		values, err := c.DistinctValuesWithin(ctx, exec, dim, scope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, newOption(dim, values))
	}
	return opts, nil
}

// PeriodOptions collects the period dashboard's option lists.
func (c Catalog) PeriodOptions(ctx context.Context, exec Executor) (Options, error) {
	opts := make(Options, 0, len(PeriodDims))
	for _, dim := range PeriodDims {
		values, err := c.DistinctValues(ctx, exec, dim)
		if err != nil {
			return nil, err
		}
		opts = append(opts, newOption(dim, values))
	}
	return opts, nil
}

func newOption(dim relation.Column, values []string) Option {
	return Option{Dimension: dim, Param: Params[dim], Label: emission.Label(dim), Values: values}
}
