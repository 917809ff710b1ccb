package relation

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownColumn is returned when a plan references a column its input does not have.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrTypeMismatch is returned when a value or reducer does not fit a column's kind.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidPlan is returned for structurally invalid plans.
	ErrInvalidPlan = errors.New("invalid plan")
)

// Column names a column of a relation.
type Column string

// Field is a named, typed column.
type Field struct {
	Name Column
	Kind Kind
}

// Schema is the ordered column list of a relation.
type Schema []Field

// Lookup returns the field named col.
func (s Schema) Lookup(col Column) (Field, bool) {
	for _, f := range s {
		if f.Name == col {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the column names in order.
func (s Schema) Columns() []Column {
	cols := make([]Column, len(s))
	for i, f := range s {
		cols[i] = f.Name
	}
	return cols
}

func (s Schema) require(col Column) (Field, error) {
	f, ok := s.Lookup(col)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownColumn, col)
	}
	return f, nil
}

// Apply returns the schema produced by running op over input rows shaped like in.
func (op Op) Apply(in Schema) (Schema, error) {
	switch op.Kind {
	case OpFilter:
		for _, c := range op.Predicate.terms {
			f, err := in.require(c.Column)
			if err != nil {
				return nil, err
			}
			if c.Value.Kind() != f.Kind {
				return nil, fmt.Errorf("%w: %s is %s, compared with %s", ErrTypeMismatch, c.Column, f.Kind, c.Value.Kind())
			}
		}
		return in, nil

	case OpGroup:
		out := make(Schema, 0, len(op.Keys)+len(op.Aggregates))
		seen := make(map[Column]bool)
		for _, k := range op.Keys {
			f, err := in.require(k)
			if err != nil {
				return nil, err
			}
			if seen[k] {
				return nil, fmt.Errorf("%w: duplicate group key %s", ErrInvalidPlan, k)
			}
			seen[k] = true
			out = append(out, f)
		}
		for _, agg := range op.Aggregates {
			if agg.Output == "" {
				return nil, fmt.Errorf("%w: aggregate without output name", ErrInvalidPlan)
			}
			if seen[agg.Output] {
				return nil, fmt.Errorf("%w: duplicate output column %s", ErrInvalidPlan, agg.Output)
			}
			seen[agg.Output] = true
			kind, err := agg.outputKind(in)
			if err != nil {
				return nil, err
			}
			out = append(out, Field{Name: agg.Output, Kind: kind})
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: group by without keys or aggregates", ErrInvalidPlan)
		}
		return out, nil

	case OpDistinct:
		if len(op.Keys) == 0 {
			return nil, fmt.Errorf("%w: distinct without columns", ErrInvalidPlan)
		}
		out := make(Schema, 0, len(op.Keys))
		for _, k := range op.Keys {
			f, err := in.require(k)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil

	case OpSort:
		if len(op.Sort) == 0 {
			return nil, fmt.Errorf("%w: sort without keys", ErrInvalidPlan)
		}
		for _, k := range op.Sort {
			if _, err := in.require(k.Column); err != nil {
				return nil, err
			}
		}
		return in, nil

	case OpLimit:
		if op.N < 0 {
			return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidPlan, op.N)
		}
		return in, nil
	}
	return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidPlan, op.Kind)
}

func (a Aggregate) outputKind(in Schema) (Kind, error) {
	if a.Reducer == ReduceCount {
		if a.Input != "" {
			if _, err := in.require(a.Input); err != nil {
				return KindNull, err
			}
		}
		return KindInt, nil
	}
	f, err := in.require(a.Input)
	if err != nil {
		return KindNull, err
	}
	if a.Reducer == ReduceSum && !f.Kind.Numeric() {
		return KindNull, fmt.Errorf("%w: cannot sum %s column %s", ErrTypeMismatch, f.Kind, a.Input)
	}
	return f.Kind, nil
}

// OutputSchema validates rel against the schema of its source and returns the
// schema of the rows it produces.
func (r Relation) OutputSchema(source Schema) (Schema, error) {
	if r.source == "" {
		return nil, fmt.Errorf("%w: relation has no source", ErrInvalidPlan)
	}
	s := source
	for _, op := range r.ops {
		next, err := op.Apply(s)
		if err != nil {
			return nil, err
		}
		s = next
	}
	return s, nil
}
