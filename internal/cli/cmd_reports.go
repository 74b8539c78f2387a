package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"insights/internal/backend"
	"insights/internal/config"
	"insights/internal/core"
	"insights/internal/report"
	"insights/internal/services"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func newReportsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List and run catalogue reports",
	}
	cmd.AddCommand(newReportsListCmd(), newReportsRunCmd(opts))
	return cmd
}

func newReportsListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every report by tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := report.Load(config.Load().ReportsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == formatJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cat.Categories)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tNAME\tFILTERS\tCHART\tTITLE")
			for _, c := range cat.Categories {
				for _, s := range c.Reports {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Key, s.Name, filterList(s.Filters), chartLabel(s.Chart), s.Title)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatTable, "output format (table, json)")
	return cmd
}

type runFlags struct {
	all      bool
	category string
	state    string
	year     string
	quarter  string
	showSQL  bool
	format   string
}

func newReportsRunCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [report...]",
		Short: "Run reports and print their tables",
		Long: `Run one or more reports with optional filters and print the result tables.

Examples:
  insights-cli reports run top_states_by_volume --state Karnataka --year 2021
  insights-cli reports run --category strategic --show-sql
  insights-cli reports run --all --year 2022 -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateSelection(args, flags); err != nil {
				return err
			}
			filters, err := core.ParseFilterSet(flags.state, flags.year, flags.quarter)
			if err != nil {
				return err
			}
			if flags.format != formatTable && flags.format != formatJSON {
				return fmt.Errorf("unknown format %q", flags.format)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			reports, cleanup, err := openReports(ctx, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			outcomes, err := runSelection(ctx, reports, args, flags, filters)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if flags.format == formatJSON {
				err = writeOutcomesJSON(out, outcomes)
			} else {
				for _, o := range outcomes {
					writeOutcome(out, o, flags.showSQL)
				}
			}
			if err != nil {
				return err
			}

			if failed := countFailed(outcomes); failed > 0 {
				return fmt.Errorf("%d of %d report(s) failed", failed, len(outcomes))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.all, "all", false, "run the whole catalogue")
	f.StringVar(&flags.category, "category", "", "run one dashboard tab")
	f.StringVar(&flags.state, "state", "", "state filter (exact match)")
	f.StringVar(&flags.year, "year", "", "year filter (2018-2023)")
	f.StringVar(&flags.quarter, "quarter", "", "quarter filter (1-4)")
	f.BoolVar(&flags.showSQL, "show-sql", false, "print the composed SQL above each table")
	f.StringVarP(&flags.format, "format", "o", formatTable, "output format (table, json)")
	return cmd
}

func validateSelection(args []string, flags runFlags) error {
	chosen := 0
	if len(args) > 0 {
		chosen++
	}
	if flags.all {
		chosen++
	}
	if flags.category != "" {
		chosen++
	}
	switch {
	case chosen == 0:
		return fmt.Errorf("name at least one report, or use --all or --category")
	case chosen > 1:
		return fmt.Errorf("report names, --all and --category are mutually exclusive")
	}
	return nil
}

// openReports builds a report service over the configured store. Exports are
// never published from the CLI, so AMQP is left out.
func openReports(ctx context.Context, opts *rootOptions) (*services.ReportService, func(), error) {
	backendCfg, err := backend.FromAppConfig(config.Load())
	if err != nil {
		return nil, nil, err
	}
	backendCfg.AMQPURL = ""

	result, err := backend.NewFactory(opts.logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := result.Cleanup(); err != nil {
			opts.logger.Warn("Cleanup failed", "error", err)
		}
	}
	return result.Reports, cleanup, nil
}

func runSelection(ctx context.Context, reports *services.ReportService, names []string, flags runFlags, filters core.FilterSet) ([]services.Outcome, error) {
	switch {
	case flags.all:
		return reports.RunAll(ctx, filters)
	case flags.category != "":
		return reports.RunCategory(ctx, flags.category, filters)
	}
	outcomes := make([]services.Outcome, 0, len(names))
	for _, name := range names {
		o := reports.Run(ctx, name, filters)
		if core.IsConnectionError(o.Err) {
			return nil, o.Err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func writeOutcome(w io.Writer, o services.Outcome, showSQL bool) {
	name, title := "", ""
	if o.Spec != nil {
		name, title = o.Spec.Name, o.Spec.Title
	}
	fmt.Fprintf(w, "== %s (%s)\n", title, name)
	if !o.Filters.IsEmpty() {
		fmt.Fprintf(w, "filters: %s\n", o.Filters)
	}
	if showSQL && o.Query.SQL != "" {
		fmt.Fprintf(w, "%s\n", o.Query.Inline())
	}
	if o.Err != nil {
		fmt.Fprintf(w, "error: %v\n\n", o.Err)
		return
	}
	if o.Table.Len() == 0 {
		fmt.Fprint(w, "(no rows)\n\n")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(o.Table.Columns, "\t")+"\t")
	for _, row := range o.Table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = core.FormatValue(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows, %s)\n\n", o.Table.Len(), o.Duration.Round(time.Millisecond))
}

type outcomeOutput struct {
	Report  string            `json:"report"`
	Filters core.FilterSet    `json:"filters"`
	SQL     string            `json:"sql,omitempty"`
	Table   *core.ResultTable `json:"table,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func writeOutcomesJSON(w io.Writer, outcomes []services.Outcome) error {
	out := make([]outcomeOutput, 0, len(outcomes))
	for _, o := range outcomes {
		item := outcomeOutput{Filters: o.Filters, Table: o.Table}
		if o.Spec != nil {
			item.Report = o.Spec.Name
		}
		if o.Query.SQL != "" {
			item.SQL = o.Query.Inline()
		}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		out = append(out, item)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func countFailed(outcomes []services.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

func filterList(fields []core.Field) string {
	if len(fields) == 0 {
		return "-"
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}

func chartLabel(c *report.ChartSpec) string {
	if c == nil {
		return "-"
	}
	if c.Group != "" {
		return fmt.Sprintf("%s x %s by %s", c.X, c.Y, c.Group)
	}
	return fmt.Sprintf("%s x %s", c.X, c.Y)
}
