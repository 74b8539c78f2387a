package report

import (
	"fmt"
	"math"

	"insights/internal/core"
)

// Bar colors, cycled per series.
var defaultColors = []string{
	"#5F259F", "#10B981", "#F59E0B", "#EF4444", "#3B82F6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// Chart is render-ready bar chart data.
type Chart struct {
	Type   string   `json:"type"`
	Title  string   `json:"title"`
	XAxis  string   `json:"xAxis"`
	YAxis  string   `json:"yAxis"`
	Labels []string `json:"labels"`
	Series []Series `json:"series"`
}

// Series is one colored set of bars. Values align with Chart.Labels.
type Series struct {
	Name   string    `json:"name"`
	Color  string    `json:"color"`
	Values []float64 `json:"values"`
}

// BuildChart turns a result table into chart data. Column names in spec must
// exist in the table; a missing column is a schema QueryError.
func BuildChart(name string, spec *ChartSpec, t *core.ResultTable) (*Chart, error) {
	if spec == nil {
		return nil, nil
	}
	for _, col := range []string{spec.X, spec.Y, spec.Group} {
		if col != "" && !t.HasColumn(col) {
			return nil, &core.QueryError{
				Report: name,
				Kind:   core.QueryKindSchema,
				Err:    fmt.Errorf("chart column %q not in result columns %v", col, t.Columns),
			}
		}
	}

	rows := t.Len()
	if spec.Limit > 0 && spec.Limit < rows {
		rows = spec.Limit
	}

	chart := &Chart{
		Type:   "bar",
		Title:  spec.Title,
		XAxis:  spec.X,
		YAxis:  spec.Y,
		Labels: []string{},
		Series: []Series{},
	}
	if rows == 0 {
		return chart, nil
	}

	if spec.Group == "" {
		s := Series{Name: spec.Y, Color: defaultColors[0], Values: make([]float64, 0, rows)}
		for i := 0; i < rows; i++ {
			x, _ := t.Get(i, spec.X)
			y, err := numericCell(name, spec.Y, t, i)
			if err != nil {
				return nil, err
			}
			chart.Labels = append(chart.Labels, core.FormatValue(x))
			s.Values = append(s.Values, y)
		}
		chart.Series = []Series{s}
		return chart, nil
	}

	return buildGrouped(name, spec, t, rows, chart)
}

// buildGrouped produces one series per distinct group value, in order of first
// appearance. Labels missing from a series get 0.
func buildGrouped(name string, spec *ChartSpec, t *core.ResultTable, rows int, chart *Chart) (*Chart, error) {
	labelIdx := make(map[string]int)
	seriesIdx := make(map[string]int)
	type cell struct {
		label, group int
		value        float64
	}
	cells := make([]cell, 0, rows)

	for i := 0; i < rows; i++ {
		x, _ := t.Get(i, spec.X)
		g, _ := t.Get(i, spec.Group)
		y, err := numericCell(name, spec.Y, t, i)
		if err != nil {
			return nil, err
		}

		label := core.FormatValue(x)
		li, ok := labelIdx[label]
		if !ok {
			li = len(chart.Labels)
			labelIdx[label] = li
			chart.Labels = append(chart.Labels, label)
		}
		group := core.FormatValue(g)
		gi, ok := seriesIdx[group]
		if !ok {
			gi = len(chart.Series)
			seriesIdx[group] = gi
			chart.Series = append(chart.Series, Series{
				Name:  group,
				Color: defaultColors[gi%len(defaultColors)],
			})
		}
		cells = append(cells, cell{label: li, group: gi, value: y})
	}

	for i := range chart.Series {
		chart.Series[i].Values = make([]float64, len(chart.Labels))
	}
	for _, c := range cells {
		chart.Series[c.group].Values[c.label] += c.value
	}
	return chart, nil
}

func numericCell(name, column string, t *core.ResultTable, i int) (float64, error) {
	v, _ := t.Get(i, column)
	if v == nil {
		return 0, nil
	}
	f, ok := core.Float(v)
	if !ok {
		return 0, &core.QueryError{
			Report: name,
			Kind:   core.QueryKindSchema,
			Err:    fmt.Errorf("chart column %q holds non-numeric value %v", column, v),
		}
	}
	return math.Round(f*100) / 100, nil
}
