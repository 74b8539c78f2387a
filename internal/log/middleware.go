package log

import (
	"context"
	"log/slog"
	"net/http"

	"insights/internal/core"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: ComponentApp,
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// log emits fields as attributes. The logger's component fills in when the
// fields do not name one.
func (sl *StructuredLogger) log(ctx context.Context, level slog.Level, msg string, fields LogFields) {
	if _, ok := fields[FieldComponent]; !ok && sl.logger.component != "" {
		fields[FieldComponent] = sl.logger.component
	}
	sl.logger.Logger.Log(ctx, level, msg, fields.ToSlice()...)
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.log(ctx, slog.LevelInfo, "HTTP request started", fields)
}

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.log(ctx, level, "HTTP request completed", fields)
}

// LogReportRun logs one report execution. Failed runs log at warn level since
// they are isolated to a single dashboard section.
func (sl *StructuredLogger) LogReportRun(ctx context.Context, name, category string, filters core.FilterSet, rows int, durationMs int64, err error) {
	fields := NewFields().
		WithReport(name, category).
		WithFilters(filters).
		WithOperation(OpRun).
		WithComponent(ComponentReport).
		WithError(err)
	fields[FieldRows] = rows
	fields[FieldDuration] = durationMs

	if err != nil {
		sl.log(ctx, slog.LevelWarn, "Report failed", fields)
		return
	}
	sl.log(ctx, slog.LevelDebug, "Report completed", fields)
}

// LogExport logs the outcome of one export request.
func (sl *StructuredLogger) LogExport(ctx context.Context, id, report, ref string, rows int, durationMs int64, err error) {
	fields := NewFields().
		WithReport(report, "").
		WithOperation(OpExport).
		WithError(err)
	fields[FieldExportID] = id
	fields[FieldDuration] = durationMs

	if err != nil {
		sl.log(ctx, slog.LevelError, "Export failed", fields)
		return
	}
	fields[FieldRows] = rows
	fields["ref"] = ref
	sl.log(ctx, slog.LevelInfo, "Report exported", fields)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.log(ctx, slog.LevelError, msg, allFields)
}
