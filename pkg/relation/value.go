package relation

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind is the type of a column or cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindString
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindDecimal:
		return "decimal"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Numeric reports whether values of this kind can be summed.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindDecimal
}

// Value is a single typed cell. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	s    string
	d    decimal.Decimal
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Decimal returns a decimal value.
func Decimal(v decimal.Decimal) Value { return Value{kind: KindDecimal, d: v} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer payload (0 for non-integers).
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindDecimal:
		return v.d.IntPart()
	}
	return 0
}

// AsDecimal returns the numeric payload as a decimal. NULL and strings are zero.
func (v Value) AsDecimal() decimal.Decimal {
	switch v.kind {
	case KindInt:
		return decimal.NewFromInt(v.i)
	case KindDecimal:
		return v.d
	}
	return decimal.Zero
}

// String renders the value for display. NULL renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	case KindDecimal:
		return v.d.String()
	}
	return ""
}

// Key is the canonical encoding used for grouping and plan fingerprints.
// NULLs share one key so they fall into a single group, as in SQL GROUP BY.
func (v Value) Key() string {
	switch v.kind {
	case KindInt:
		return "i:" + strconv.FormatInt(v.i, 10)
	case KindString:
		return "s:" + strconv.Quote(v.s)
	case KindDecimal:
		return "d:" + v.d.String()
	}
	return "n"
}

// Equal reports whether two non-NULL values are equal. NULL equals nothing.
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	return v.Compare(o) == 0
}

// Compare orders values. NULL sorts after every non-NULL value; ints and
// decimals compare numerically; otherwise values of different kinds order by kind.
func (v Value) Compare(o Value) int {
	switch {
	case v.kind == KindNull && o.kind == KindNull:
		return 0
	case v.kind == KindNull:
		return 1
	case o.kind == KindNull:
		return -1
	}
	if v.kind.Numeric() && o.kind.Numeric() {
		if v.kind == KindInt && o.kind == KindInt {
			switch {
			case v.i < o.i:
				return -1
			case v.i > o.i:
				return 1
			}
			return 0
		}
		return v.AsDecimal().Cmp(o.AsDecimal())
	}
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	return strings.Compare(v.s, o.s)
}

// MarshalJSON encodes NULL as null, numbers as JSON numbers and strings as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindString:
		return json.Marshal(v.s)
	case KindDecimal:
		return []byte(v.d.String()), nil
	}
	return []byte("null"), nil
}

// Row is one materialized tuple keyed by column name.
type Row map[Column]Value

// Get returns the value of col, or NULL when the row has no such column.
func (r Row) Get(col Column) Value {
	if r == nil {
		return Null()
	}
	return r[col]
}
