package backend

import (
	"fmt"

	"insights/internal/config"
	"insights/internal/retry"
	gsheet "insights/internal/sheets/google"
	"insights/internal/storage"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	dialect := storage.Dialect(appConfig.DataBackend)
	if !dialect.IsValid() {
		return Config{}, fmt.Errorf("invalid data backend in config: %s", appConfig.DataBackend)
	}

	exportType := ExportType(appConfig.ExportBackend)
	if !exportType.IsValid() {
		return Config{}, fmt.Errorf("invalid export backend in config: %s", appConfig.ExportBackend)
	}

	dsn := appConfig.SQLiteDBPath
	if dialect == storage.MySQL {
		dsn = appConfig.MySQLDSN
		if dsn == "" {
			dsn = storage.MySQLParams{
				Host:     appConfig.MySQLHost,
				Port:     appConfig.MySQLPort,
				User:     appConfig.MySQLUser,
				Password: appConfig.MySQLPassword,
				Database: appConfig.MySQLDatabase,
			}.DSN()
		}
	}

	return Config{
		Store: storage.Options{
			Dialect:         dialect,
			DSN:             dsn,
			MaxOpenConns:    appConfig.DBMaxOpenConns,
			MaxIdleConns:    appConfig.DBMaxIdleConns,
			ConnMaxLifetime: appConfig.DBConnLifetime,
			QueryTimeout:    appConfig.QueryTimeout,
			Retry: retry.Policy{
				Attempts:   appConfig.ConnectRetries,
				Backoff:    appConfig.ConnectBackoff,
				MaxBackoff: 10 * appConfig.ConnectBackoff,
			},
		},

		ReportsFile:       appConfig.ReportsFile,
		ReportParallelism: appConfig.ReportParallelism,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Export: exportType,
		Sheets: gsheet.Options{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			TabPrefix:          appConfig.ExportSheetPrefix,
		},
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Store.Dialect.IsValid() {
		return fmt.Errorf("invalid data backend: %s", c.Store.Dialect)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("%s data source is required", c.Store.Dialect)
	}
	if !c.Export.IsValid() {
		return fmt.Errorf("invalid export backend: %s", c.Export)
	}
	if c.Export == SheetsExport && c.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets export")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}

// GetExportTypes returns all valid export types
func GetExportTypes() []ExportType {
	return []ExportType{MemoryExport, SheetsExport}
}
