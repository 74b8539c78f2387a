package core

import (
	"fmt"
	"math"
	"strconv"
)

// Value is a scalar cell: nil, int64, float64 or string.
type Value = any

// ResultTable is the tabular output of one report execution.
// It is produced fresh per execution and never shared between reports.
type ResultTable struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}

// NewResultTable creates an empty table with the given schema.
func NewResultTable(columns []string) *ResultTable {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &ResultTable{Columns: cols, Rows: [][]Value{}}
}

// Len returns the number of rows.
func (t *ResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of a column or -1.
func (t *ResultTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the schema contains name.
func (t *ResultTable) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Get returns the cell at row i for the named column.
func (t *ResultTable) Get(i int, column string) (Value, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[i][idx], true
}

// Records returns the rows as column-name keyed maps.
func (t *ResultTable) Records() []map[string]Value {
	out := make([]map[string]Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]Value, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		out = append(out, rec)
	}
	return out
}

// Float converts a numeric cell to float64. Strings holding numbers are accepted
// because some drivers return DECIMAL columns as text.
func Float(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatValue renders a cell for display.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return "—"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) && x < 1e15 && x > -1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', 2, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// NormalizeValue turns a raw driver value into a Value. []byte is decoded into
// int64 or float64 when it parses, otherwise kept as a string.
func NormalizeValue(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return nil
	case []byte:
		return parseText(string(x))
	case int64, float64, string:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return float64(x)
		}
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	default:
		return fmt.Sprint(x)
	}
}

func parseText(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}
