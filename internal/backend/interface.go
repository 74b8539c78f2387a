package backend

import (
	"context"

	"insights/internal/amqp"
	"insights/internal/services"
	"insights/internal/sheets"
	gsheet "insights/internal/sheets/google"
	"insights/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything a process needs to serve reports.
type BackendResult struct {
	Store   *storage.Store
	Reports *services.ReportService
	// AMQP is nil when no broker is configured.
	AMQP    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend opens the store, loads the catalogue and connects AMQP.
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	// CreateExporter builds the sink export requests are written to.
	CreateExporter(ctx context.Context, config Config) (sheets.ReportExporter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Store storage.Options

	// Catalogue
	ReportsFile       string
	ReportParallelism int

	// AMQP is optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export sink
	Export ExportType
	Sheets gsheet.Options
}

// ExportType selects the ReportExporter implementation.
type ExportType string

const (
	SheetsExport ExportType = "sheets"
	MemoryExport ExportType = "memory"
)

// String implements fmt.Stringer
func (et ExportType) String() string {
	return string(et)
}

// IsValid returns true if the export type is valid
func (et ExportType) IsValid() bool {
	switch et {
	case SheetsExport, MemoryExport:
		return true
	default:
		return false
	}
}
