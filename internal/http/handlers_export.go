package http

import (
	"context"
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"insights/internal/amqp"
	"insights/internal/log"
)

// handleCreateExport queues a report export. The body is form-encoded (htmx)
// or JSON with report, state, year and quarter fields.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	asJSON := wantsJSON(r)

	fail := func(status int, kind, message string) {
		if asJSON {
			jsonError(status, kind, message).send(w)
			return
		}
		htmlError(status, kind, message).send(w)
	}

	if s.exports == nil {
		fail(http.StatusServiceUnavailable, errorKindInternal, "Exports are not configured")
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		fail(http.StatusBadRequest, errorKindInput, "Invalid request body")
		return
	}

	name := parser.Get("report")
	spec, err := s.reports.Catalogue().Get(name)
	if err != nil {
		fail(http.StatusNotFound, errorKindNotFound, "Unknown report: "+name)
		return
	}
	filters, err := parser.Filters()
	if err != nil {
		fail(http.StatusBadRequest, errorKindInput, err.Error())
		return
	}

	msg := amqp.NewExportRequest(spec.Name, filters)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.exports.PublishExportRequest(ctx, msg); err != nil {
		logger.ErrorContext(r.Context(), "Failed to queue export",
			log.FieldReport, spec.Name,
			log.FieldExportID, msg.ID.String(),
			log.FieldError, err,
			log.FieldComponent, log.ComponentAMQP,
			log.FieldOperation, log.OpExport)
		fail(http.StatusServiceUnavailable, errorKindInternal, "Export queue unavailable")
		return
	}
	atomic.AddInt64(&s.appMetrics.exportsQueued, 1)

	logger.InfoContext(r.Context(), "Export queued",
		log.FieldReport, spec.Name,
		log.FieldFilters, filters.String(),
		log.FieldExportID, msg.ID.String(),
		log.FieldOperation, log.OpExport)

	if asJSON {
		jsonReply(http.StatusAccepted, map[string]any{
			"id":      msg.ID,
			"report":  spec.Name,
			"filters": filters,
		}).send(w)
		return
	}
	newReply(http.StatusAccepted).
		exportQueued(spec.Name, msg.ID).
		notify(notifySuccess, "Export of "+spec.Title+" queued").
		html(`<span class="export-status">Queued #` + template.HTMLEscapeString(msg.ID.String()[:8]) + `</span>`).
		send(w)
}
