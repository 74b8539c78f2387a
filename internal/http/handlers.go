package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"insights/internal/core"
	"insights/internal/log"
	"insights/internal/report"
)

// handleHealth is the liveness probe. It never touches the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonReply(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).send(w)
}

// handleReady checks templates and pings the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.store == nil {
		checks["store"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.store.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness ping failed",
			log.FieldError, err,
			log.FieldErrorKind, log.ErrorType(err))
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.reports != nil {
		checks["reports"] = s.reports.Catalogue().Len()
	}

	if s.exports != nil {
		checks["exports"] = "ok"
	} else {
		checks["exports"] = "disabled"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	jsonReply(httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).send(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	reportRuns := atomic.LoadInt64(&s.appMetrics.reportRuns)
	reportFailures := atomic.LoadInt64(&s.appMetrics.reportFailures)
	exportsQueued := atomic.LoadInt64(&s.appMetrics.exportsQueued)
	uptime := time.Since(s.appMetrics.uptime)

	w.WriteHeader(http.StatusOK)

	// Write metrics in Prometheus-like format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_microseconds Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP report_runs_total Total report executions served\n")
	fmt.Fprintf(w, "# TYPE report_runs_total counter\n")
	fmt.Fprintf(w, "report_runs_total %d\n\n", reportRuns)

	fmt.Fprintf(w, "# HELP report_failures_total Total report executions that failed\n")
	fmt.Fprintf(w, "# TYPE report_failures_total counter\n")
	fmt.Fprintf(w, "report_failures_total %d\n\n", reportFailures)

	fmt.Fprintf(w, "# HELP exports_queued_total Total export requests published\n")
	fmt.Fprintf(w, "# TYPE exports_queued_total counter\n")
	fmt.Fprintf(w, "exports_queued_total %d\n\n", exportsQueued)

	if s.store != nil {
		stats := s.store.Stats()
		fmt.Fprintf(w, "# HELP db_connections Store pool connections\n")
		fmt.Fprintf(w, "# TYPE db_connections gauge\n")
		fmt.Fprintf(w, "db_connections{state=\"open\"} %d\n", stats.OpenConnections)
		fmt.Fprintf(w, "db_connections{state=\"in_use\"} %d\n", stats.InUse)
		fmt.Fprintf(w, "db_connections{state=\"idle\"} %d\n\n", stats.Idle)

		fmt.Fprintf(w, "# HELP db_wait_total Connections waited for\n")
		fmt.Fprintf(w, "# TYPE db_wait_total counter\n")
		fmt.Fprintf(w, "db_wait_total %d\n\n", stats.WaitCount)
	}

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", uptime.Seconds())
}

type indexView struct {
	Filters       core.FilterSet
	FilterQuery   string
	FilterError   string
	Years         []int
	Quarters      []int
	Categories    []*report.Category
	ExportEnabled bool
}

// handleIndex renders the dashboard shell. Report sections load lazily
// through /ui/reports/{name}.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	view := indexView{
		Years:         core.Years,
		Quarters:      core.Quarters,
		Categories:    s.reports.Catalogue().Categories,
		ExportEnabled: s.exports != nil,
	}
	status := http.StatusOK

	filters, err := ParseFilterParams(r.URL.Query())
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Invalid dashboard filters",
			log.FieldQuery, r.URL.RawQuery,
			log.FieldError, err)
		view.FilterError = err.Error()
		status = http.StatusBadRequest
	} else {
		view.Filters = filters
		view.FilterQuery = FilterQuery(filters)
	}

	s.render(w, r, status, "index.html", view)
}
