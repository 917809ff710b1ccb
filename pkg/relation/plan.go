// Package relation is a small typed query builder. A Relation is an immutable
// plan (scan, filter, group, distinct, sort, limit) that a storage backend
// materializes. Column names are values of type Column and cell values are
// typed Values, so nothing a user selects is ever spliced into query text.
package relation

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Reducer is an aggregate function.
type Reducer uint8

const (
	ReduceSum Reducer = iota
	ReduceCount
	ReduceMin
	ReduceMax
)

func (r Reducer) String() string {
	switch r {
	case ReduceSum:
		return "SUM"
	case ReduceCount:
		return "COUNT"
	case ReduceMin:
		return "MIN"
	case ReduceMax:
		return "MAX"
	}
	return "REDUCER(" + strconv.Itoa(int(r)) + ")"
}

// Aggregate computes Output = Reducer(Input) per group.
// A count with an empty Input counts rows.
type Aggregate struct {
	Output  Column
	Input   Column
	Reducer Reducer
}

// Sum returns the aggregate output = SUM(input).
func Sum(output, input Column) Aggregate {
	return Aggregate{Output: output, Input: input, Reducer: ReduceSum}
}

// CountRows returns the aggregate output = COUNT(*).
func CountRows(output Column) Aggregate {
	return Aggregate{Output: output, Reducer: ReduceCount}
}

// Min returns the aggregate output = MIN(input).
func Min(output, input Column) Aggregate {
	return Aggregate{Output: output, Input: input, Reducer: ReduceMin}
}

// Max returns the aggregate output = MAX(input).
func Max(output, input Column) Aggregate {
	return Aggregate{Output: output, Input: input, Reducer: ReduceMax}
}

// SortKey orders rows by one column.
type SortKey struct {
	Column     Column
	Descending bool
}

// Asc sorts ascending by col.
func Asc(col Column) SortKey { return SortKey{Column: col} }

// Desc sorts descending by col.
func Desc(col Column) SortKey { return SortKey{Column: col, Descending: true} }

// OpKind identifies a plan step.
type OpKind uint8

const (
	OpFilter OpKind = iota
	OpGroup
	OpDistinct
	OpSort
	OpLimit
)

// Op is one step of a plan. Only the fields relevant to Kind are set.
type Op struct {
	Kind       OpKind
	Predicate  Predicate
	Keys       []Column
	Aggregates []Aggregate
	Sort       []SortKey
	N          int
}

// Relation is an immutable query plan rooted at a named source relation.
type Relation struct {
	source string
	ops    []Op
}

// Scan starts a plan over the named source relation.
func Scan(name string) Relation {
	return Relation{source: name}
}

// Source returns the name of the scanned relation.
func (r Relation) Source() string { return r.source }

// Ops returns a copy of the plan steps.
func (r Relation) Ops() []Op {
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r Relation) with(op Op) Relation {
	ops := make([]Op, len(r.ops), len(r.ops)+1)
	copy(ops, r.ops)
	return Relation{source: r.source, ops: append(ops, op)}
}

// Filter keeps rows matching p. An empty predicate is a no-op.
func (r Relation) Filter(p Predicate) Relation {
	if p.IsEmpty() {
		return r
	}
	return r.with(Op{Kind: OpFilter, Predicate: p})
}

// GroupBy groups rows by keys and computes aggregates per group. With no keys
// the whole input is one group, so the result always has exactly one row.
func (r Relation) GroupBy(keys []Column, aggs ...Aggregate) Relation {
	return r.with(Op{
		Kind:       OpGroup,
		Keys:       append([]Column(nil), keys...),
		Aggregates: append([]Aggregate(nil), aggs...),
	})
}

// Distinct projects cols and removes duplicate tuples.
func (r Relation) Distinct(cols ...Column) Relation {
	return r.with(Op{Kind: OpDistinct, Keys: append([]Column(nil), cols...)})
}

// Sort orders rows by keys. Sorting is stable; NULLs sort last in either direction.
func (r Relation) Sort(keys ...SortKey) Relation {
	return r.with(Op{Kind: OpSort, Sort: append([]SortKey(nil), keys...)})
}

// Limit keeps the first n rows.
func (r Relation) Limit(n int) Relation {
	return r.with(Op{Kind: OpLimit, N: n})
}

// String renders the plan canonically. Equal plans render identically.
func (r Relation) String() string {
	var b strings.Builder
	b.WriteString("scan(")
	b.WriteString(strconv.Quote(r.source))
	b.WriteString(")")
	for _, op := range r.ops {
		b.WriteString(" | ")
		switch op.Kind {
		case OpFilter:
			b.WriteString("filter(")
			b.WriteString(op.Predicate.String())
		case OpGroup:
			b.WriteString("group(")
			b.WriteString(joinColumns(op.Keys))
			b.WriteString(";")
			for i, a := range op.Aggregates {
				if i > 0 {
					b.WriteString(",")
				}
				b.WriteString(string(a.Output))
				b.WriteString("=")
				b.WriteString(a.Reducer.String())
				b.WriteString("(")
				b.WriteString(string(a.Input))
				b.WriteString(")")
			}
		case OpDistinct:
			b.WriteString("distinct(")
			b.WriteString(joinColumns(op.Keys))
		case OpSort:
			b.WriteString("sort(")
			for i, k := range op.Sort {
				if i > 0 {
					b.WriteString(",")
				}
				b.WriteString(string(k.Column))
				if k.Descending {
					b.WriteString(" desc")
				}
			}
		case OpLimit:
			b.WriteString("limit(")
			b.WriteString(strconv.Itoa(op.N))
		}
		b.WriteString(")")
	}
	return b.String()
}

// Fingerprint hashes the canonical plan. Memoization keys on it.
func (r Relation) Fingerprint() uint64 {
	return xxhash.Sum64String(r.String())
}

func joinColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
