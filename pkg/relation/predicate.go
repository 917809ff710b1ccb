package relation

import "strings"

// Condition is a single equality test column = value.
type Condition struct {
	Column Column
	Value  Value
}

// Predicate is a conjunction of equality conditions. The zero Predicate
// matches every row.
type Predicate struct {
	terms []Condition
}

// Eq returns the predicate col = v.
func Eq(col Column, v Value) Predicate {
	return Predicate{terms: []Condition{{Column: col, Value: v}}}
}

// And joins predicates into one conjunction, keeping term order.
func And(ps ...Predicate) Predicate {
	var n int
	for _, p := range ps {
		n += len(p.terms)
	}
	terms := make([]Condition, 0, n)
	for _, p := range ps {
		terms = append(terms, p.terms...)
	}
	return Predicate{terms: terms}
}

// Conditions returns a copy of the predicate's terms.
func (p Predicate) Conditions() []Condition {
	out := make([]Condition, len(p.terms))
	copy(out, p.terms)
	return out
}

// IsEmpty reports whether the predicate has no terms.
func (p Predicate) IsEmpty() bool { return len(p.terms) == 0 }

// Matches reports whether row satisfies every term. A NULL cell never matches.
func (p Predicate) Matches(row Row) bool {
	for _, c := range p.terms {
		if !row.Get(c.Column).Equal(c.Value) {
			return false
		}
	}
	return true
}

// String renders the predicate canonically, e.g. `YEAR = i:2023 AND CITY_NAME = s:"Seoul"`.
func (p Predicate) String() string {
	if len(p.terms) == 0 {
		return "TRUE"
	}
	parts := make([]string, len(p.terms))
	for i, c := range p.terms {
		parts[i] = string(c.Column) + " = " + c.Value.Key()
	}
	return strings.Join(parts, " AND ")
}
