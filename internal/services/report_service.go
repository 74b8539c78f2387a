// Package services orchestrates report runs: compose, execute, chart.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/query"
	"insights/internal/report"
)

// Runner executes a composed query. *storage.Store implements it.
type Runner interface {
	Execute(ctx context.Context, q query.Query) (*core.ResultTable, error)
}

// Outcome is the result of one report in one render cycle. Err holds any
// failure; Table may still be set when only the chart could not be built.
type Outcome struct {
	Spec     *report.Spec
	Filters  core.FilterSet
	Query    query.Query
	Table    *core.ResultTable
	Chart    *report.Chart
	Err      error
	Duration time.Duration
}

// OK reports whether the run produced a table and chart without error.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// DefaultParallelism bounds concurrent report queries in a render cycle.
const DefaultParallelism = 5

// ReportService runs catalogue reports against a Runner.
type ReportService struct {
	catalogue   *report.Catalogue
	runner      Runner
	parallelism int
	logger      *log.StructuredLogger
}

// NewReportService creates a service. parallelism below 1 uses DefaultParallelism.
func NewReportService(catalogue *report.Catalogue, runner Runner, parallelism int, logger *log.Logger) *ReportService {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReportService{
		catalogue:   catalogue,
		runner:      runner,
		parallelism: parallelism,
		logger:      log.NewStructuredLogger(logger.WithComponent(log.ComponentReport)),
	}
}

// Catalogue returns the report catalogue.
func (s *ReportService) Catalogue() *report.Catalogue {
	return s.catalogue
}

// Run executes a single report by name. Unknown names and invalid filters
// are reported in Outcome.Err like any other failure.
func (s *ReportService) Run(ctx context.Context, name string, f core.FilterSet) Outcome {
	spec, err := s.catalogue.Get(name)
	if err != nil {
		return Outcome{Filters: f, Err: err}
	}
	if err := f.Validate(); err != nil {
		return Outcome{Spec: spec, Filters: f, Err: err}
	}
	return s.run(ctx, spec, f)
}

// RunAll executes every report in catalogue order. Report failures stay in
// their outcome. A connection failure cancels the remaining reports and is
// returned alongside the partial outcomes.
func (s *ReportService) RunAll(ctx context.Context, f core.FilterSet) ([]Outcome, error) {
	return s.runMany(ctx, s.catalogue.Reports(), f)
}

// RunCategory executes the reports of one dashboard tab.
func (s *ReportService) RunCategory(ctx context.Context, key string, f core.FilterSet) ([]Outcome, error) {
	cat, ok := s.catalogue.Category(key)
	if !ok {
		return nil, fmt.Errorf("%w: category %s", core.ErrReportNotFound, key)
	}
	return s.runMany(ctx, cat.Reports, f)
}

func (s *ReportService) runMany(ctx context.Context, specs []*report.Spec, f core.FilterSet) ([]Outcome, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	outcomes := make([]Outcome, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i, spec := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Spec: spec, Filters: f.Only(spec.Filters...), Err: err}
				return nil
			}
			outcomes[i] = s.run(gctx, spec, f)
			if core.IsConnectionError(outcomes[i].Err) {
				return outcomes[i].Err
			}
			return nil
		})
	}

	err := g.Wait()
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	fields := log.NewFields().
		WithFilters(f).
		WithOperation(log.OpRunAll).
		WithError(err)
	fields["reports"] = len(specs)
	fields["failed"] = failed
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	if err != nil {
		s.logger.LogError(ctx, "Render cycle aborted", err, log.ComponentReport, log.OpRunAll, fields)
		return outcomes, err
	}
	return outcomes, nil
}

func (s *ReportService) run(ctx context.Context, spec *report.Spec, f core.FilterSet) (out Outcome) {
	start := time.Now()
	out = Outcome{Spec: spec, Filters: f.Only(spec.Filters...)}
	defer func() {
		out.Duration = time.Since(start)
		s.logger.LogReportRun(ctx, spec.Name, spec.Category, out.Filters, out.Table.Len(), out.Duration.Milliseconds(), out.Err)
	}()

	q, err := spec.Compose(f)
	if err != nil {
		out.Err = &core.QueryError{Report: spec.Name, Kind: core.QueryKindInvalid, Err: err}
		return out
	}
	out.Query = q

	table, err := s.runner.Execute(ctx, q)
	if err != nil {
		out.Err = attachReport(err, spec.Name)
		return out
	}
	out.Table = table

	chart, err := report.BuildChart(spec.Name, spec.Chart, table)
	if err != nil {
		out.Err = err
		return out
	}
	out.Chart = chart
	return out
}

// attachReport names the report on a QueryError that came back without one.
func attachReport(err error, name string) error {
	var qe *core.QueryError
	if errors.As(err, &qe) && qe.Report == "" {
		return &core.QueryError{Report: name, Kind: qe.Kind, Err: qe.Err}
	}
	return err
}
