package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/report"
	"insights/internal/services"
)

type cellView struct {
	Text    string
	Numeric bool
}

// reportView feeds report.html. Request holds the filters the operator chose;
// Applied is the subset the report accepts.
type reportView struct {
	Spec          *report.Spec
	Request       core.FilterSet
	Applied       core.FilterSet
	Columns       []string
	Rows          [][]cellView
	ChartJSON     string
	SQL           string
	Error         string
	ErrorKind     string
	DurationMs    int64
	ExportEnabled bool
}

func newReportView(spec *report.Spec, request core.FilterSet, o services.Outcome) reportView {
	v := reportView{
		Spec:       spec,
		Request:    request,
		Applied:    o.Filters,
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Query.SQL != "" {
		v.SQL = o.Query.Inline()
	}
	if o.Table != nil {
		v.Columns = o.Table.Columns
		v.Rows = make([][]cellView, len(o.Table.Rows))
		for i, row := range o.Table.Rows {
			cells := make([]cellView, len(row))
			for j, value := range row {
				_, isString := value.(string)
				cells[j] = cellView{Text: core.FormatValue(value), Numeric: value != nil && !isString}
			}
			v.Rows[i] = cells
		}
	}
	if o.Chart != nil {
		if data, err := json.Marshal(o.Chart); err == nil {
			v.ChartJSON = string(data)
		}
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
		v.ErrorKind = errorKind(o.Err)
	}
	return v
}

// countRuns records report executions for /metrics.
func (s *Server) countRuns(outcomes ...services.Outcome) {
	for _, o := range outcomes {
		atomic.AddInt64(&s.appMetrics.reportRuns, 1)
		if o.Err != nil {
			atomic.AddInt64(&s.appMetrics.reportFailures, 1)
		}
	}
}

// storeCooldown is how long report sections skip the store after one of them
// lost the connection.
const storeCooldown = 10 * time.Second

const storeDownMessage = "The data store is unreachable. Reload the page to try again."

func (s *Server) storeDown() bool {
	return time.Now().UnixNano() < s.storeDownUntil.Load()
}

func (s *Server) markStoreDown() {
	s.storeDownUntil.Store(time.Now().Add(storeCooldown).UnixNano())
}

// handleReportPartial renders one report section. Report failures and
// invalid filters render inline so one broken section never blanks the page.
// A lost store connection is the exception: it answers 503 with a page-level
// event, and sibling sections skip the store until the cooldown ends.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	name := ReportName(r)
	spec, err := s.reports.Catalogue().Get(name)
	if err != nil {
		htmlError(http.StatusNotFound, errorKindNotFound, "Unknown report: "+name).send(w)
		return
	}

	filters, err := ParseFilterParams(r.URL.Query())
	if err != nil {
		s.render(w, r, http.StatusOK, "report.html", reportView{
			Spec:      spec,
			Error:     err.Error(),
			ErrorKind: errorKindInput,
		})
		return
	}

	if s.storeDown() {
		storeUnavailable(storeDownMessage, storeCooldown).send(w)
		return
	}

	out := s.reports.Run(r.Context(), name, filters)
	s.countRuns(out)

	if core.IsConnectionError(out.Err) {
		s.markStoreDown()
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Store unreachable, pausing report sections",
			log.FieldReport, name,
			log.FieldError, out.Err,
			log.FieldErrorKind, log.ErrorType(out.Err))
		storeUnavailable(storeDownMessage, storeCooldown).send(w)
		return
	}

	view := newReportView(spec, filters, out)
	view.ExportEnabled = s.exports != nil && out.Table != nil
	s.render(w, r, http.StatusOK, "report.html", view)
}

// handleListReports returns the catalogue with the selectable filter values.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	jsonReply(http.StatusOK, map[string]any{
		"categories": s.reports.Catalogue().Categories,
		"years":      core.Years,
		"quarters":   core.Quarters,
	}).send(w)
}

// handleRunReport runs one report and returns its outcome as JSON. A failing
// report answers 502 with the error in the body.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	name := ReportName(r)
	filters, err := ParseFilterParams(r.URL.Query())
	if err != nil {
		jsonError(http.StatusBadRequest, errorKindInput, err.Error()).send(w)
		return
	}

	out := s.reports.Run(r.Context(), name, filters)
	s.countRuns(out)

	status := http.StatusOK
	if out.Err != nil {
		status = statusForError(out.Err)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Report request failed",
			log.FieldReport, name,
			log.FieldFilters, filters.String(),
			log.FieldStatusCode, status,
			log.FieldError, out.Err)
	}
	jsonReply(status, toOutcomeJSON(name, out)).send(w)
}

type dashboardJSON struct {
	Filters  core.FilterSet `json:"filters"`
	Category string         `json:"category,omitempty"`
	Reports  []outcomeJSON  `json:"reports"`
	Failed   int            `json:"failed"`
	Error    *errorJSON     `json:"error,omitempty"`
}

// handleDashboard runs a whole render cycle, or one tab with ?category=.
// Report failures stay inside their outcome and the response is 200; a lost
// store connection aborts the cycle with 503.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilterParams(r.URL.Query())
	if err != nil {
		jsonError(http.StatusBadRequest, errorKindInput, err.Error()).send(w)
		return
	}

	category := sanitizeInput(r.URL.Query().Get("category"))
	var outcomes []services.Outcome
	if category != "" {
		outcomes, err = s.reports.RunCategory(r.Context(), category, filters)
	} else {
		outcomes, err = s.reports.RunAll(r.Context(), filters)
	}
	if errors.Is(err, core.ErrReportNotFound) {
		jsonError(http.StatusNotFound, errorKindNotFound, err.Error()).send(w)
		return
	}
	s.countRuns(outcomes...)

	body := dashboardJSON{
		Filters:  filters,
		Category: category,
		Reports:  make([]outcomeJSON, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		body.Reports = append(body.Reports, toOutcomeJSON("", o))
		if o.Err != nil {
			body.Failed++
		}
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
		if core.IsInputError(err) {
			status = http.StatusBadRequest
		}
		if core.IsConnectionError(err) {
			s.markStoreDown()
		}
		body.Error = &errorJSON{Kind: errorKind(err), Message: err.Error()}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard render aborted",
			log.FieldFilters, filters.String(),
			log.FieldError, err,
			log.FieldErrorKind, log.ErrorType(err))
	}
	jsonReply(status, body).send(w)
}
