package backend

import (
	"context"
	"errors"
	"fmt"

	"insights/internal/amqp"
	"insights/internal/log"
	"insights/internal/report"
	"insights/internal/services"
	"insights/internal/sheets"
	gsheet "insights/internal/sheets/google"
	"insights/internal/sheets/memory"
	"insights/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	catalogue, err := report.Load(config.ReportsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load report catalogue: %w", err)
	}

	store, err := storage.Open(ctx, config.Store, f.logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", config.Store.Dialect, err)
	}

	// Initialize AMQP client (optional)
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without exports", "error", err)
			amqpClient = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	reports := services.NewReportService(catalogue, store, config.ReportParallelism, f.logger)

	f.logger.Info("Initialized backend",
		"dialect", config.Store.Dialect,
		"reports", catalogue.Len(),
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Store:   store,
		Reports: reports,
		AMQP:    amqpClient,
		Cleanup: func() error {
			var errs []error
			if amqpClient != nil {
				errs = append(errs, amqpClient.Close())
			}
			errs = append(errs, store.Close())
			return errors.Join(errs...)
		},
	}, nil
}

// CreateExporter implements Factory.CreateExporter
func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.ReportExporter, error) {
	switch config.Export {
	case SheetsExport:
		cli, err := gsheet.NewClient(ctx, config.Sheets)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", config.Sheets.SpreadsheetID)
		return cli, nil
	case MemoryExport:
		f.logger.Info("Initialized memory exporter")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", config.Export)
	}
}
