package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"insights/internal/core"
	ports "insights/internal/sheets"
)

// maxTabName is the Sheets limit on tab titles.
const maxTabName = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Prefix prepended to every report tab, e.g. "pulse_".
	tabPrefix string
}

// Ensure interface conformance
var _ ports.ReportExporter = (*Client)(nil)

// Options configure NewClient. Empty credential fields fall back to
// GOOGLE_APPLICATION_CREDENTIALS.
type Options struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	TabPrefix          string
}

// NewClient creates a Sheets exporter authenticated with a service account.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	creds, err := credentials(ctx, opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready", "spreadsheet_id", spreadsheetID)
	return NewWithService(svc, spreadsheetID, opts.TabPrefix), nil
}

// NewWithService wraps an existing service. Tests point it at a local server.
func NewWithService(svc *gsheet.Service, spreadsheetID, tabPrefix string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabPrefix: tabPrefix}
}

// credentials resolves service account JSON from options or the standard
// Google Cloud environment variable.
func credentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.ServiceAccountJSON)
	file := strings.TrimSpace(opts.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// Export writes the table to the report's own tab, creating the tab on first
// use and clearing it on later ones.
func (c *Client) Export(ctx context.Context, report string, filters core.FilterSet, table *core.ResultTable) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if table == nil {
		return "", errors.New("nothing to export")
	}

	tab := tabName(c.tabPrefix, report)
	if err := c.ensureTab(ctx, tab); err != nil {
		return "", err
	}

	all := quoteRange(tab)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, all, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", tab, err)
	}

	rows := ports.Rows(report, filters, table)
	start := all + "!A1"
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, start, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write %s: %w", tab, err)
	}

	ref := resp.UpdatedRange
	if ref == "" {
		ref = start
	}
	slog.InfoContext(ctx, "Report exported to sheet", "report", report, "tab", tab, "rows", table.Len())
	return ref, nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created report sheet", "tab", tab)
	return nil
}

// tabName joins prefix and report, trimmed to the Sheets title limit.
func tabName(prefix, report string) string {
	name := prefix + report
	if len(name) > maxTabName {
		name = name[:maxTabName]
	}
	return name
}

// quoteRange quotes a tab title for A1 notation.
func quoteRange(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
