// Package local evaluates relation plans in process. The memory and badger
// stores scan their records into rows and hand them to Evaluate.
package local

import (
	"context"
	"sort"
	"strings"

	"github.com/nicktill/carbondash/pkg/relation"
)

// Evaluate runs rel over rows shaped like schema. The input slice is not modified.
func Evaluate(ctx context.Context, rel relation.Relation, schema relation.Schema, rows []relation.Row) ([]relation.Row, error) {
	if _, err := rel.OutputSchema(schema); err != nil {
		return nil, err
	}

	out := rows
	for _, op := range rel.Ops() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch op.Kind {
		case relation.OpFilter:
			out = filter(out, op.Predicate)
		case relation.OpGroup:
			out = group(out, op.Keys, op.Aggregates)
		case relation.OpDistinct:
			out = distinct(out, op.Keys)
		case relation.OpSort:
			out = sortRows(out, op.Sort)
		case relation.OpLimit:
			if op.N < len(out) {
				out = out[:op.N]
			}
		}
	}

	// The result never aliases the caller's slice.
	return append(make([]relation.Row, 0, len(out)), out...), nil
}

func filter(rows []relation.Row, p relation.Predicate) []relation.Row {
	out := make([]relation.Row, 0, len(rows))
	for _, r := range rows {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func groupKey(r relation.Row, cols []relation.Column) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(r.Get(c).Key())
		b.WriteByte(0)
	}
	return b.String()
}

type accumulator struct {
	agg   relation.Aggregate
	value relation.Value
	count int64
}

func (a *accumulator) add(r relation.Row) {
	if a.agg.Reducer == relation.ReduceCount {
		if a.agg.Input == "" || !r.Get(a.agg.Input).IsNull() {
			a.count++
		}
		return
	}
	v := r.Get(a.agg.Input)
	if v.IsNull() {
		return
	}
	if a.value.IsNull() {
		a.value = v
		return
	}
	switch a.agg.Reducer {
	case relation.ReduceSum:
		if v.Kind() == relation.KindInt && a.value.Kind() == relation.KindInt {
			a.value = relation.Int(a.value.AsInt() + v.AsInt())
		} else {
			a.value = relation.Decimal(a.value.AsDecimal().Add(v.AsDecimal()))
		}
	case relation.ReduceMin:
		if v.Compare(a.value) < 0 {
			a.value = v
		}
	case relation.ReduceMax:
		if v.Compare(a.value) > 0 {
			a.value = v
		}
	}
}

func (a *accumulator) result() relation.Value {
	if a.agg.Reducer == relation.ReduceCount {
		return relation.Int(a.count)
	}
	return a.value
}

type groupState struct {
	keys relation.Row
	accs []*accumulator
}

// group keeps groups in first-seen order. NULL keys form one group. With no
// keys an empty input still yields one row, matching SQL global aggregates.
func group(rows []relation.Row, keys []relation.Column, aggs []relation.Aggregate) []relation.Row {
	index := make(map[string]*groupState)
	var order []*groupState

	newState := func(r relation.Row) *groupState {
		g := &groupState{keys: make(relation.Row, len(keys))}
		for _, k := range keys {
			g.keys[k] = r.Get(k)
		}
		for _, a := range aggs {
			g.accs = append(g.accs, &accumulator{agg: a})
		}
		return g
	}

	for _, r := range rows {
		k := groupKey(r, keys)
		g, ok := index[k]
		if !ok {
			g = newState(r)
			index[k] = g
			order = append(order, g)
		}
		for _, acc := range g.accs {
			acc.add(r)
		}
	}
	if len(keys) == 0 && len(order) == 0 {
		order = append(order, newState(nil))
	}

	out := make([]relation.Row, 0, len(order))
	for _, g := range order {
		row := make(relation.Row, len(keys)+len(aggs))
		for k, v := range g.keys {
			row[k] = v
		}
		for _, acc := range g.accs {
			row[acc.agg.Output] = acc.result()
		}
		out = append(out, row)
	}
	return out
}

func distinct(rows []relation.Row, cols []relation.Column) []relation.Row {
	seen := make(map[string]bool)
	out := make([]relation.Row, 0)
	for _, r := range rows {
		k := groupKey(r, cols)
		if seen[k] {
			continue
		}
		seen[k] = true
		row := make(relation.Row, len(cols))
		for _, c := range cols {
			row[c] = r.Get(c)
		}
		out = append(out, row)
	}
	return out
}

// sortRows is stable. NULLs sort last whichever the direction.
func sortRows(rows []relation.Row, keys []relation.SortKey) []relation.Row {
	out := append([]relation.Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range keys {
			a, b := out[i].Get(k.Column), out[j].Get(k.Column)
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return false
			case b.IsNull():
				return true
			}
			c := a.Compare(b)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out
}
