package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insights/internal/amqp"
	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/services"
	"insights/internal/sheets"
)

// ReportRunner runs one catalogue report. *services.ReportService implements it.
type ReportRunner interface {
	Run(ctx context.Context, name string, f core.FilterSet) services.Outcome
}

// ExportWorker turns export requests into exported report tables.
type ExportWorker struct {
	reports  ReportRunner
	exporter sheets.ReportExporter
	logger   *log.Logger
}

func NewExportWorker(reports ReportRunner, exporter sheets.ReportExporter) *ExportWorker {
	return &ExportWorker{
		reports:  reports,
		exporter: exporter,
		logger:   log.FromContext(context.Background()).WithComponent(log.ComponentWorker),
	}
}

// WithLogger replaces the worker's logger.
func (w *ExportWorker) WithLogger(logger *log.Logger) *ExportWorker {
	w.logger = logger.WithComponent(log.ComponentWorker)
	return w
}

// HandleExportRequest re-runs the requested report and hands its table to the
// exporter. Failures a retry cannot fix come back as amqp.PermanentError;
// store outages and exporter errors are returned plain so the message is
// requeued.
func (w *ExportWorker) HandleExportRequest(ctx context.Context, msg *amqp.ExportRequestMessage) (err error) {
	start := time.Now()
	id := msg.ID.String()
	logger := w.logger.With(log.FieldExportID, id)
	logger.DebugContext(ctx, "Processing export request",
		log.FieldReport, msg.Report,
		log.FieldFilters, msg.Filters.String())

	var ref string
	rows := 0
	defer func() {
		log.NewStructuredLogger(logger).LogExport(ctx, id, msg.Report, ref, rows, time.Since(start).Milliseconds(), err)
	}()

	out := w.reports.Run(ctx, msg.Report, msg.Filters)
	if out.Table == nil {
		return classify(ctx, msg, out.Err)
	}
	if out.Err != nil {
		// Chart failures still leave a usable table.
		logger.WarnContext(ctx, "Exporting report without chart", log.FieldError, out.Err)
	}

	ref, err = w.exporter.Export(ctx, msg.Report, out.Filters, out.Table)
	if err != nil {
		return fmt.Errorf("export %s: %w", msg.Report, err)
	}
	rows = out.Table.Len()
	return nil
}

// classify decides whether a failed run is worth redelivering.
func classify(ctx context.Context, msg *amqp.ExportRequestMessage, err error) error {
	if err == nil {
		return amqp.Permanent(fmt.Errorf("report %s produced no table", msg.Report))
	}
	switch {
	case core.IsConnectionError(err):
		return fmt.Errorf("run %s: %w", msg.Report, err)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return err
	default:
		return amqp.Permanent(fmt.Errorf("run %s: %w", msg.Report, err))
	}
}
