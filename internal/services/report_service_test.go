package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights/internal/core"
	"insights/internal/query"
	"insights/internal/report"
)

// fakeRunner answers every query with a table shaped from the SQL it saw.
type fakeRunner struct {
	mu       sync.Mutex
	seen     []query.Query
	fail     func(q query.Query) error
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeRunner) Execute(ctx context.Context, q query.Query) (*core.ResultTable, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(q); err != nil {
			return nil, err
		}
	}
	return tableFor(q), nil
}

// tableFor returns a one-row table holding every column a chart could bind.
func tableFor(q query.Query) *core.ResultTable {
	cols := []string{
		"state", "total_amount", "transaction_type", "quarter", "year", "brand", "loyalty_pct",
		"efficiency", "pincode", "total_value", "variety",
	}
	t := core.NewResultTable(cols)
	row := make([]core.Value, len(cols))
	for i := range row {
		row[i] = int64(len(q.Template) + i)
	}
	t.Rows = append(t.Rows, row)
	return t
}

func newService(t *testing.T, r Runner, parallelism int) *ReportService {
	t.Helper()
	cat, err := report.Default()
	require.NoError(t, err)
	return NewReportService(cat, r, parallelism, nil)
}

func TestRun_ComposesAcceptedFilters(t *testing.T) {
	r := &fakeRunner{}
	svc := newService(t, r, 1)

	out := svc.Run(context.Background(), "seasonal_q4_vs_q1", core.FilterSet{State: "Goa", Year: 2021, Quarter: 3})
	require.NoError(t, out.Err)
	assert.Equal(t, core.FilterSet{State: "Goa", Year: 2021}, out.Filters)
	assert.Equal(t, []any{"Goa", 2021}, out.Query.Args)
	assert.Equal(t, 1, out.Table.Len())
	assert.Nil(t, out.Chart)
}

func TestRun_BuildsChart(t *testing.T) {
	svc := newService(t, &fakeRunner{}, 1)
	out := svc.Run(context.Background(), "top_states_by_volume", core.FilterSet{})
	require.NoError(t, out.Err)
	require.NotNil(t, out.Chart)
	assert.Len(t, out.Chart.Labels, 1)
}

func TestRun_Errors(t *testing.T) {
	svc := newService(t, &fakeRunner{}, 1)

	out := svc.Run(context.Background(), "missing", core.FilterSet{})
	assert.ErrorIs(t, out.Err, core.ErrReportNotFound)

	out = svc.Run(context.Background(), "top_pincodes", core.FilterSet{Year: 1999})
	assert.True(t, core.IsInputError(out.Err))
}

func TestRun_AttachesReportName(t *testing.T) {
	r := &fakeRunner{fail: func(query.Query) error {
		return &core.QueryError{Kind: core.QueryKindSchema, Err: errors.New("no such column")}
	}}
	svc := newService(t, r, 1)

	out := svc.Run(context.Background(), "payment_diversity", core.FilterSet{})
	var qe *core.QueryError
	require.ErrorAs(t, out.Err, &qe)
	assert.Equal(t, "payment_diversity", qe.Report)
	assert.Equal(t, core.QueryKindSchema, qe.Kind)
}

func TestRunAll_CatalogueOrder(t *testing.T) {
	svc := newService(t, &fakeRunner{delay: time.Millisecond}, 4)

	outcomes, err := svc.RunAll(context.Background(), core.FilterSet{State: "Karnataka"})
	require.NoError(t, err)

	specs := svc.Catalogue().Reports()
	require.Len(t, outcomes, len(specs))
	for i, o := range outcomes {
		assert.Equal(t, specs[i].Name, o.Spec.Name)
		assert.NoError(t, o.Err, o.Spec.Name)
	}
}

func TestRunAll_BoundedParallelism(t *testing.T) {
	r := &fakeRunner{delay: 5 * time.Millisecond}
	svc := newService(t, r, 3)

	_, err := svc.RunAll(context.Background(), core.FilterSet{})
	require.NoError(t, err)
	assert.LessOrEqual(t, r.peak.Load(), int32(3))
	assert.Len(t, r.seen, svc.Catalogue().Len())
}

func TestRunAll_FailureIsolation(t *testing.T) {
	broken := "FROM map_insurance"
	r := &fakeRunner{fail: func(q query.Query) error {
		if strings.Contains(q.SQL, broken) {
			return &core.QueryError{Kind: core.QueryKindSchema, Err: errors.New("no such table")}
		}
		return nil
	}}
	svc := newService(t, r, 5)

	outcomes, err := svc.RunAll(context.Background(), core.FilterSet{})
	require.NoError(t, err)

	baseline := newService(t, &fakeRunner{}, 1)
	for _, o := range outcomes {
		if strings.Contains(o.Query.SQL, broken) {
			assert.Error(t, o.Err, o.Spec.Name)
			continue
		}
		require.NoError(t, o.Err, o.Spec.Name)
		alone := baseline.Run(context.Background(), o.Spec.Name, core.FilterSet{})
		assert.Equal(t, alone.Table, o.Table, o.Spec.Name)
		assert.Equal(t, alone.Query, o.Query, o.Spec.Name)
	}
}

func TestRunAll_IndependentOfOrder(t *testing.T) {
	svc := newService(t, &fakeRunner{}, 5)
	f := core.FilterSet{Year: 2022}

	all, err := svc.RunAll(context.Background(), f)
	require.NoError(t, err)

	specs := svc.Catalogue().Reports()
	for i := len(specs) - 1; i >= 0; i-- {
		single := svc.Run(context.Background(), specs[i].Name, f)
		assert.Equal(t, all[i].Table, single.Table, specs[i].Name)
		assert.Equal(t, all[i].Chart, single.Chart, specs[i].Name)
	}
}

func TestRunAll_ConnectionErrorAbortsCycle(t *testing.T) {
	down := &core.ConnectionError{Op: "query", Err: errors.New("connection refused")}
	r := &fakeRunner{fail: func(query.Query) error { return down }}
	svc := newService(t, r, 1)

	outcomes, err := svc.RunAll(context.Background(), core.FilterSet{})
	require.Error(t, err)
	assert.True(t, core.IsConnectionError(err))
	assert.Len(t, outcomes, svc.Catalogue().Len())
	assert.Less(t, len(r.seen), svc.Catalogue().Len())
}

func TestRunAll_InvalidFilters(t *testing.T) {
	svc := newService(t, &fakeRunner{}, 1)
	_, err := svc.RunAll(context.Background(), core.FilterSet{Quarter: 7})
	assert.True(t, core.IsInputError(err))
}

func TestRunCategory(t *testing.T) {
	svc := newService(t, &fakeRunner{}, 2)

	outcomes, err := svc.RunCategory(context.Background(), "users", core.FilterSet{})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "brand_loyalty", outcomes[0].Spec.Name)

	_, err = svc.RunCategory(context.Background(), "nope", core.FilterSet{})
	assert.ErrorIs(t, err, core.ErrReportNotFound)
}
