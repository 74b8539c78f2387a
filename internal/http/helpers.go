package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"insights/internal/core"
	"insights/internal/report"
	"insights/internal/services"
)

// Error kinds reported to clients. Query failures use core.QueryErrorKind.
const (
	errorKindInput       = "input"
	errorKindNotFound    = "not_found"
	errorKindConnection  = "connection"
	errorKindTimeout     = "timeout"
	errorKindInternal    = "internal"
	errorKindRateLimited = "rate_limited"
)

type errorJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// outcomeJSON is the wire form of one report run.
type outcomeJSON struct {
	Report     string            `json:"report"`
	Title      string            `json:"title,omitempty"`
	Category   string            `json:"category,omitempty"`
	Filters    core.FilterSet    `json:"filters"`
	SQL        string            `json:"sql,omitempty"`
	Table      *core.ResultTable `json:"table,omitempty"`
	Chart      *report.Chart     `json:"chart,omitempty"`
	Error      *errorJSON        `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

func toOutcomeJSON(name string, o services.Outcome) outcomeJSON {
	out := outcomeJSON{
		Report:     name,
		Filters:    o.Filters,
		Table:      o.Table,
		Chart:      o.Chart,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Spec != nil {
		out.Report = o.Spec.Name
		out.Title = o.Spec.Title
		out.Category = o.Spec.Category
	}
	if o.Query.SQL != "" {
		out.SQL = o.Query.Inline()
	}
	if o.Err != nil {
		out.Error = &errorJSON{Kind: errorKind(o.Err), Message: o.Err.Error()}
	}
	return out
}

// errorKind names the failure class of err for clients.
func errorKind(err error) string {
	var qe *core.QueryError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrReportNotFound):
		return errorKindNotFound
	case core.IsInputError(err):
		return errorKindInput
	case core.IsConnectionError(err):
		return errorKindConnection
	case errors.As(err, &qe):
		return string(qe.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return errorKindTimeout
	default:
		return errorKindInternal
	}
}

// statusForError maps a single-report failure to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrReportNotFound):
		return http.StatusNotFound
	case core.IsInputError(err):
		return http.StatusBadRequest
	case core.IsConnectionError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
