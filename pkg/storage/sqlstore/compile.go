package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nicktill/carbondash/pkg/relation"
)

// Query is a compiled plan.
type Query struct {
	SQL  string
	Args []any

	// Schema of the result columns, in select-list order.
	Schema relation.Schema
}

// block is one SELECT. Ops are folded into the current block until one would
// change the meaning of what is already there; then the block becomes a
// derived table of a new one.
type block struct {
	from  string
	args  []any
	input relation.Schema

	where    []relation.Condition
	keys     []relation.Column
	aggs     []relation.Aggregate
	grouped  bool
	distinct []relation.Column
	order    []relation.SortKey
	limit    int
}

func newBlock(from string, args []any, input relation.Schema) *block {
	return &block{from: from, args: args, input: input, limit: -1}
}

func (b *block) shaped() bool { return b.grouped || len(b.distinct) > 0 }

// Compile translates rel into a SELECT over the source table. source must be
// the schema of rel's source relation.
func Compile(d Dialect, rel relation.Relation, source relation.Schema) (*Query, error) {
	if _, err := rel.OutputSchema(source); err != nil {
		return nil, err
	}
	table, err := d.QuoteRelation(rel.Source())
	if err != nil {
		return nil, err
	}

	c := &compiler{d: d}
	b := newBlock(table, nil, source)

	for _, op := range rel.Ops() {
		switch op.Kind {
		case relation.OpFilter:
			if b.shaped() || len(b.order) > 0 || b.limit >= 0 {
				b = c.wrap(b, true)
			}
			b.where = append(b.where, op.Predicate.Conditions()...)

		case relation.OpGroup:
			if b.shaped() || b.limit >= 0 {
				b = c.wrap(b, false)
			}
			b.order = nil
			b.grouped = true
			b.keys = op.Keys
			b.aggs = op.Aggregates

		case relation.OpDistinct:
			if b.shaped() || b.limit >= 0 {
				b = c.wrap(b, false)
			}
			b.order = nil
			b.distinct = op.Keys

		case relation.OpSort:
			if b.limit >= 0 || len(b.distinct) > 0 {
				b = c.wrap(b, true)
			}
			// A stable re-sort orders by the new keys, then by the old ones.
			b.order = append(append([]relation.SortKey(nil), op.Sort...), b.order...)

		case relation.OpLimit:
			if b.limit < 0 || op.N < b.limit {
				b.limit = op.N
			}
		}
	}

	out, err := b.output()
	if err != nil {
		return nil, err
	}
	sql, args := c.render(b)
	return &Query{SQL: sql, Args: args, Schema: out}, nil
}

type compiler struct {
	d      Dialect
	tables int
}

// wrap turns b into a derived table. With keepOrder the new block re-applies
// b's ordering, since a derived table's row order is not preserved.
func (c *compiler) wrap(b *block, keepOrder bool) *block {
	out, _ := b.output()
	sql, args := c.render(b)
	c.tables++
	nb := newBlock("("+sql+") AS t"+strconv.Itoa(c.tables), args, out)
	if keepOrder {
		nb.order = b.order
	}
	return nb
}

func (b *block) output() (relation.Schema, error) {
	switch {
	case b.grouped:
		return relation.Op{Kind: relation.OpGroup, Keys: b.keys, Aggregates: b.aggs}.Apply(b.input)
	case len(b.distinct) > 0:
		return relation.Op{Kind: relation.OpDistinct, Keys: b.distinct}.Apply(b.input)
	}
	return b.input, nil
}

func (c *compiler) render(b *block) (string, []any) {
	q := c.d.QuoteIdent
	args := append([]any(nil), b.args...)

	var sb strings.Builder
	sb.WriteString("SELECT ")

	switch {
	case b.grouped:
		items := make([]string, 0, len(b.keys)+len(b.aggs))
		for _, k := range b.keys {
			items = append(items, q(string(k)))
		}
		for _, a := range b.aggs {
			items = append(items, c.aggregate(a)+" AS "+q(string(a.Output)))
		}
		sb.WriteString(strings.Join(items, ", "))
	case len(b.distinct) > 0:
		sb.WriteString("DISTINCT ")
		sb.WriteString(c.columnList(b.distinct))
	default:
		sb.WriteString(c.columnList(b.input.Columns()))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(b.from)

	if len(b.where) > 0 {
		conds := make([]string, len(b.where))
		for i, cond := range b.where {
			conds[i] = q(string(cond.Column)) + " = ?"
			args = append(args, bindValue(cond.Value))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if b.grouped && len(b.keys) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(c.columnList(b.keys))
	}

	if len(b.order) > 0 {
		terms := make([]string, 0, 2*len(b.order))
		for _, k := range b.order {
			expr := c.orderExpr(b, k.Column)
			// NULLs last in both directions.
			term := expr
			if k.Descending {
				term += " DESC"
			}
			terms = append(terms, "("+expr+" IS NULL)", term)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}

	return sb.String(), args
}

// orderExpr refers to aggregate outputs by their expression, which both
// engines accept inside ORDER BY expressions.
func (c *compiler) orderExpr(b *block, col relation.Column) string {
	if b.grouped {
		for _, a := range b.aggs {
			if a.Output == col {
				return c.aggregate(a)
			}
		}
	}
	return c.d.QuoteIdent(string(col))
}

func (c *compiler) aggregate(a relation.Aggregate) string {
	arg := "*"
	if a.Input != "" {
		arg = c.d.QuoteIdent(string(a.Input))
	}
	return a.Reducer.String() + "(" + arg + ")"
}

func (c *compiler) columnList(cols []relation.Column) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = c.d.QuoteIdent(string(col))
	}
	return strings.Join(parts, ", ")
}

func bindValue(v relation.Value) any {
	switch v.Kind() {
	case relation.KindInt:
		return v.AsInt()
	case relation.KindString:
		return v.String()
	case relation.KindDecimal:
		return v.AsDecimal().String()
	}
	return nil
}

func (q *Query) String() string {
	return fmt.Sprintf("%s %v", q.SQL, q.Args)
}
