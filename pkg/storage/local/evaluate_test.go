package local

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/carbondash/pkg/relation"
)

var schema = relation.Schema{
	{Name: "MONTH", Kind: relation.KindString},
	{Name: "CAT", Kind: relation.KindString},
	{Name: "N", Kind: relation.KindInt},
	{Name: "KG", Kind: relation.KindDecimal},
}

func row(month, cat string, n int64, kg string) relation.Row {
	r := relation.Row{"N": relation.Int(n), "KG": relation.Decimal(decimal.RequireFromString(kg))}
	r["MONTH"] = relation.Null()
	if month != "" {
		r["MONTH"] = relation.String(month)
	}
	r["CAT"] = relation.Null()
	if cat != "" {
		r["CAT"] = relation.String(cat)
	}
	return r
}

func fixture() []relation.Row {
	return []relation.Row{
		row("02", "b", 1, "1.5"),
		row("01", "a", 2, "2.5"),
		row("02", "a", 3, "3"),
		row("", "b", 4, "4"),
		row("01", "", 5, "0.5"),
	}
}

func TestEvaluate_GroupSumCount(t *testing.T) {
	rel := relation.Scan("T").
		GroupBy([]relation.Column{"MONTH"}, relation.Sum("KG", "KG"), relation.Sum("N", "N"), relation.CountRows("ROWS")).
		Sort(relation.Asc("MONTH"))

	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.Equal(t, "01", out[0]["MONTH"].String())
	require.Equal(t, "3", out[0]["KG"].String())
	require.Equal(t, relation.Int(7), out[0]["N"])
	require.Equal(t, relation.Int(2), out[0]["ROWS"])

	require.Equal(t, "02", out[1]["MONTH"].String())
	require.Equal(t, "4.5", out[1]["KG"].String())

	// NULL month is its own group and sorts last.
	require.True(t, out[2]["MONTH"].IsNull())
	require.Equal(t, "4", out[2]["KG"].String())
}

func TestEvaluate_GlobalAggregateOverEmptyInput(t *testing.T) {
	rel := relation.Scan("T").
		Filter(relation.Eq("MONTH", relation.String("12"))).
		GroupBy(nil, relation.Sum("KG", "KG"), relation.CountRows("ROWS"))

	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0]["KG"].IsNull(), "sum over nothing is NULL")
	require.Equal(t, relation.Int(0), out[0]["ROWS"])
}

func TestEvaluate_KeyedGroupOverEmptyInput(t *testing.T) {
	rel := relation.Scan("T").GroupBy([]relation.Column{"MONTH"}, relation.Sum("KG", "KG"))
	out, err := Evaluate(context.Background(), rel, schema, nil)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestEvaluate_FilterNeverMatchesNull(t *testing.T) {
	rel := relation.Scan("T").Filter(relation.Eq("CAT", relation.String("a")))
	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestEvaluate_SortStableWithTieBreak(t *testing.T) {
	rows := []relation.Row{
		row("01", "z", 1, "5"),
		row("01", "a", 1, "5"),
		row("01", "m", 1, "9"),
		row("01", "c", 1, "1"),
	}
	rel := relation.Scan("T").
		Sort(relation.Desc("KG"), relation.Asc("CAT")).
		Limit(3)

	out, err := Evaluate(context.Background(), rel, schema, rows)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, []string{"m", "a", "z"}, []string{out[0]["CAT"].String(), out[1]["CAT"].String(), out[2]["CAT"].String()})
}

func TestEvaluate_DescendingKeepsNullsLast(t *testing.T) {
	rel := relation.Scan("T").Sort(relation.Desc("MONTH"))
	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Equal(t, "02", out[0]["MONTH"].String())
	require.True(t, out[len(out)-1]["MONTH"].IsNull())
}

func TestEvaluate_Distinct(t *testing.T) {
	rel := relation.Scan("T").Distinct("CAT").Sort(relation.Asc("CAT"))
	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, out[0], 1, "distinct projects its columns")
	require.Equal(t, "a", out[0]["CAT"].String())
	require.Equal(t, "b", out[1]["CAT"].String())
	require.True(t, out[2]["CAT"].IsNull())
}

func TestEvaluate_MinMax(t *testing.T) {
	rel := relation.Scan("T").GroupBy(nil, relation.Min("LO", "KG"), relation.Max("HI", "MONTH"))
	out, err := Evaluate(context.Background(), rel, schema, fixture())
	require.NoError(t, err)
	require.Equal(t, "0.5", out[0]["LO"].String())
	require.Equal(t, "02", out[0]["HI"].String())
}

func TestEvaluate_DoesNotModifyInput(t *testing.T) {
	in := fixture()
	_, err := Evaluate(context.Background(), relation.Scan("T").Sort(relation.Asc("N")).Limit(1), schema, in)
	require.NoError(t, err)
	require.Equal(t, "02", in[0]["MONTH"].String())
	require.Len(t, in, 5)
}

func TestEvaluate_InvalidPlan(t *testing.T) {
	_, err := Evaluate(context.Background(), relation.Scan("T").Filter(relation.Eq("N", relation.String("1"))), schema, fixture())
	if !errors.Is(err, relation.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestEvaluate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, relation.Scan("T").Limit(1), schema, fixture())
	require.ErrorIs(t, err, context.Canceled)
}
