package dashboard

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

const (
	colTotal relation.Column = "TOTAL_KG"
	colRows  relation.Column = "ROW_COUNT"
)

// DefaultTopN is the length of the usage ranking.
const DefaultTopN = 3

var hundred = decimal.NewFromInt(100)

// Total is the scalar emission total of a scope.
type Total struct {
	KG   decimal.Decimal `json:"kg"`
	Rows int64           `json:"rows"`
}

// SeriesPoint is one step of a trend.
type SeriesPoint struct {
	Key string          `json:"key"`
	KG  decimal.Decimal `json:"kg"`
}

// Ranked is one entry of the usage ranking. Share is the percentage of the
// ranking's own total, to one decimal place.
type Ranked struct {
	Usage string          `json:"usage"`
	KG    decimal.Decimal `json:"kg"`
	Share decimal.Decimal `json:"share"`
}

// materialize runs one pipeline query. Executor failures come back as *QueryError.
func materialize(ctx context.Context, exec Executor, op string, rel relation.Relation) ([]relation.Row, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "dashboard."+op,
		trace.WithAttributes(
			attribute.String("relation", rel.Source()),
			attribute.String("plan", rel.String()),
		))
	defer span.End()

	timer := telemetry.QueryTimer(op)
	defer timer.ObserveDuration()

	rows, err := exec.Materialize(ctx, rel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &QueryError{Op: op, Err: err}
	}
	span.SetAttributes(attribute.Int("result_count", len(rows)))
	return rows, nil
}

// ScalarTotal sums CO2E_KG over scoped. An empty scope totals 0.
func ScalarTotal(ctx context.Context, exec Executor, scoped relation.Relation) (Total, error) {
	rel := scoped.GroupBy(nil, relation.Sum(colTotal, emission.ColCO2eKg), relation.CountRows(colRows))

	rows, err := materialize(ctx, exec, "total", rel)
	if err != nil {
		return Total{}, err
	}
	if len(rows) == 0 {
		return Total{KG: decimal.Zero}, nil
	}
	return Total{
		KG:   rows[0].Get(colTotal).AsDecimal(),
		Rows: rows[0].Get(colRows).AsInt(),
	}, nil
}

// Trend sums CO2E_KG per axis value, ascending. Axis values with no rows are
// absent, not zero. Rows with a NULL axis are dropped.
func Trend(ctx context.Context, exec Executor, scoped relation.Relation, axis relation.Column) ([]SeriesPoint, error) {
	rel := scoped.
		GroupBy([]relation.Column{axis}, relation.Sum(colTotal, emission.ColCO2eKg)).
		Sort(relation.Asc(axis))

	rows, err := materialize(ctx, exec, "trend", rel)
	if err != nil {
		return nil, err
	}

	points := make([]SeriesPoint, 0, len(rows))
	for _, r := range rows {
		key := r.Get(axis)
		if key.IsNull() {
			continue
		}
		points = append(points, SeriesPoint{Key: key.String(), KG: r.Get(colTotal).AsDecimal()})
	}
	return points, nil
}

// TrendBy sums CO2E_KG per (axis, secondary) and pivots the result into a
// matrix indexed by axis with one column per secondary value.
func TrendBy(ctx context.Context, exec Executor, scoped relation.Relation, axis, secondary relation.Column) (*Matrix, error) {
	rel := scoped.
		GroupBy([]relation.Column{axis, secondary}, relation.Sum(colTotal, emission.ColCO2eKg)).
		Sort(relation.Asc(axis), relation.Asc(secondary))

	rows, err := materialize(ctx, exec, "trend_by_"+string(secondary), rel)
	if err != nil {
		return nil, err
	}
	return Pivot(rows, axis, secondary, colTotal), nil
}

// TopN ranks usage categories by summed CO2E_KG, descending. Equal sums are
// ordered by USAGE_CLEAN ascending.
func TopN(ctx context.Context, exec Executor, scoped relation.Relation, n int) ([]Ranked, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	rel := scoped.
		GroupBy([]relation.Column{emission.ColUsage}, relation.Sum(colTotal, emission.ColCO2eKg)).
		Sort(relation.Desc(colTotal), relation.Asc(emission.ColUsage)).
		Limit(n)

	rows, err := materialize(ctx, exec, "top_usage", rel)
	if err != nil {
		return nil, err
	}

	ranked := make([]Ranked, 0, len(rows))
	sum := decimal.Zero
	for _, r := range rows {
		kg := r.Get(colTotal).AsDecimal()
		sum = sum.Add(kg)
		ranked = append(ranked, Ranked{Usage: r.Get(emission.ColUsage).String(), KG: kg})
	}
	for i := range ranked {
		ranked[i].Share = decimal.Zero
		if sum.IsPositive() {
			ranked[i].Share = ranked[i].KG.Mul(hundred).DivRound(sum, 4).Round(1)
		}
	}
	return ranked, nil
}
