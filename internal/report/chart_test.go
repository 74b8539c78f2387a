package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights/internal/core"
)

func table(cols []string, rows ...[]core.Value) *core.ResultTable {
	t := core.NewResultTable(cols)
	t.Rows = append(t.Rows, rows...)
	return t
}

func TestBuildChart_SingleSeries(t *testing.T) {
	tbl := table([]string{"state", "total_amount"},
		[]core.Value{"Karnataka", float64(1234.567)},
		[]core.Value{"Goa", int64(10)},
		[]core.Value{"Bihar", nil},
	)
	c, err := BuildChart("top", &ChartSpec{Title: "T", X: "state", Y: "total_amount"}, tbl)
	require.NoError(t, err)

	assert.Equal(t, "bar", c.Type)
	assert.Equal(t, []string{"Karnataka", "Goa", "Bihar"}, c.Labels)
	require.Len(t, c.Series, 1)
	assert.Equal(t, []float64{1234.57, 10, 0}, c.Series[0].Values)
}

func TestBuildChart_GroupedAndLimited(t *testing.T) {
	tbl := table([]string{"state", "brand", "loyalty_pct"},
		[]core.Value{"Goa", "Xiaomi", 40.0},
		[]core.Value{"Assam", "Samsung", 35.5},
		[]core.Value{"Kerala", "Xiaomi", 30.0},
		[]core.Value{"Punjab", "Vivo", 20.0},
	)
	c, err := BuildChart("loyalty", &ChartSpec{X: "state", Y: "loyalty_pct", Group: "brand", Limit: 3}, tbl)
	require.NoError(t, err)

	assert.Equal(t, []string{"Goa", "Assam", "Kerala"}, c.Labels)
	require.Len(t, c.Series, 2)
	assert.Equal(t, "Xiaomi", c.Series[0].Name)
	assert.Equal(t, []float64{40, 0, 30}, c.Series[0].Values)
	assert.Equal(t, "Samsung", c.Series[1].Name)
	assert.Equal(t, []float64{0, 35.5, 0}, c.Series[1].Values)
	assert.NotEqual(t, c.Series[0].Color, c.Series[1].Color)
}

func TestBuildChart_MissingColumn(t *testing.T) {
	tbl := table([]string{"state", "amount"}, []core.Value{"Goa", 1.0})

	_, err := BuildChart("top", &ChartSpec{X: "state", Y: "total_amount"}, tbl)
	var qe *core.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, core.QueryKindSchema, qe.Kind)
	assert.Equal(t, "top", qe.Report)
}

func TestBuildChart_NonNumeric(t *testing.T) {
	tbl := table([]string{"state", "total"}, []core.Value{"Goa", "lots"})
	_, err := BuildChart("top", &ChartSpec{X: "state", Y: "total"}, tbl)
	require.Error(t, err)
}

func TestBuildChart_EmptyAndNil(t *testing.T) {
	c, err := BuildChart("top", nil, core.NewResultTable([]string{"a"}))
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = BuildChart("top", &ChartSpec{X: "state", Y: "v"}, core.NewResultTable([]string{"state", "v"}))
	require.NoError(t, err)
	assert.Empty(t, c.Labels)
	assert.Empty(t, c.Series)
}
