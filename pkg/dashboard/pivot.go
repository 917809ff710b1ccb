package dashboard

import (
	"encoding/json"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/relation"
)

// CellState distinguishes "no rows" from "rows summing to zero".
type CellState uint8

const (
	CellMissing CellState = iota
	CellZero
	CellValue
)

func (s CellState) String() string {
	switch s {
	case CellZero:
		return "zero"
	case CellValue:
		return "value"
	}
	return "missing"
}

// Cell is one (index, column) entry of a Matrix.
type Cell struct {
	State CellState
	KG    decimal.Decimal
}

// MarshalJSON encodes a missing cell as null and any other cell as its value.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.State == CellMissing {
		return []byte("null"), nil
	}
	return json.Marshal(c.KG)
}

// Matrix is a pivoted trend: one row per Index value, one column per Columns value.
type Matrix struct {
	Axis      relation.Column `json:"axis"`
	Secondary relation.Column `json:"secondary"`
	Index     []string        `json:"index"`
	Columns   []string        `json:"columns"`
	Cells     [][]Cell        `json:"cells"`
}

// At returns the cell at (index, column). Unknown keys are missing.
func (m *Matrix) At(index, column string) Cell {
	i := lo.IndexOf(m.Index, index)
	j := lo.IndexOf(m.Columns, column)
	if i < 0 || j < 0 {
		return Cell{}
	}
	return m.Cells[i][j]
}

// Pivot reshapes grouped (axis, secondary, value) rows. Index keeps the
// order of first appearance in rows; columns sort ascending. A pair absent
// from rows stays CellMissing, as does a group whose sum is NULL. Rows with a
// NULL axis or secondary value are dropped.
func Pivot(rows []relation.Row, axis, secondary, value relation.Column) *Matrix {
	m := &Matrix{Axis: axis, Secondary: secondary, Index: []string{}, Columns: []string{}, Cells: [][]Cell{}}

	kept := lo.Filter(rows, func(r relation.Row, _ int) bool {
		return !r.Get(axis).IsNull() && !r.Get(secondary).IsNull()
	})

	m.Index = lo.Uniq(lo.Map(kept, func(r relation.Row, _ int) string { return r.Get(axis).String() }))

	cols := lo.UniqBy(lo.Map(kept, func(r relation.Row, _ int) relation.Value { return r.Get(secondary) }),
		func(v relation.Value) string { return v.Key() })
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Compare(cols[j]) < 0 })
	m.Columns = lo.Map(cols, func(v relation.Value, _ int) string { return v.String() })

	rowAt := make(map[string]int, len(m.Index))
	for i, k := range m.Index {
		rowAt[k] = i
	}
	colAt := make(map[string]int, len(m.Columns))
	for j, k := range m.Columns {
		colAt[k] = j
	}

	m.Cells = make([][]Cell, len(m.Index))
	for i := range m.Cells {
		m.Cells[i] = make([]Cell, len(m.Columns))
	}
	for _, r := range kept {
		v := r.Get(value)
		if v.IsNull() {
			continue
		}
		cell := Cell{State: CellValue, KG: v.AsDecimal()}
		if cell.KG.IsZero() {
			cell.State = CellZero
		}
		m.Cells[rowAt[r.Get(axis).String()]][colAt[r.Get(secondary).String()]] = cell
	}
	return m
}
