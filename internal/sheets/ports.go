package sheets

import (
	"context"

	"insights/internal/core"
)

// Ports for outbound adapters.
type (
	// ReportExporter writes one report result to an external sink, replacing
	// whatever an earlier export of the same report left there.
	ReportExporter interface {
		// Export returns a reference to where the table was written.
		Export(ctx context.Context, report string, filters core.FilterSet, table *core.ResultTable) (ref string, err error)
	}
)

// Rows flattens a table into a header row, a filter caption row and the data
// rows, the layout every exporter writes.
func Rows(report string, filters core.FilterSet, table *core.ResultTable) [][]any {
	caption := report
	if !filters.IsEmpty() {
		caption += " (" + filters.String() + ")"
	}
	out := make([][]any, 0, table.Len()+2)
	out = append(out, []any{caption})

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	out = append(out, header)

	for _, row := range table.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		out = append(out, cells)
	}
	return out
}

// cell keeps numbers numeric so the sheet can chart them. Text stays text,
// including pincodes that look numeric.
func cell(v core.Value) any {
	switch x := v.(type) {
	case nil:
		return ""
	case int64, float64:
		return x
	default:
		return core.FormatValue(x)
	}
}
