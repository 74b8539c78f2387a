package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Client-side events raised through the HX-Trigger header.
const (
	eventNotification = "show-notification"
	eventExportQueued = "export:queued"

	// eventStoreUnavailable makes the page show one banner and stop loading sections.
	eventStoreUnavailable = "store:unavailable"
)

type notifyLevel string

const (
	notifySuccess notifyLevel = "success"
	notifyError   notifyLevel = "error"
	notifyWarning notifyLevel = "warning"
	notifyInfo    notifyLevel = "info"
)

// notification is the payload app.js expects on show-notification.
type notification struct {
	Type     notifyLevel `json:"type"`
	Message  string      `json:"message"`
	Duration int         `json:"duration"`
}

// displayMs is how long each notification level stays on screen.
var displayMs = map[notifyLevel]int{
	notifySuccess: 3000,
	notifyInfo:    3000,
	notifyWarning: 5000,
	notifyError:   6000,
}

type exportQueuedEvent struct {
	Report string `json:"report"`
	ID     string `json:"id"`
}

type storeUnavailableEvent struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// reply accumulates a status, headers, client events and a body, then writes
// them in one go. Events are encoded into a single HX-Trigger header.
type reply struct {
	status int
	header http.Header
	events map[string]any
	body   []byte
}

func newReply(status int) *reply {
	return &reply{
		status: status,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (b *reply) event(name string, payload any) *reply {
	b.events[name] = payload
	return b
}

func (b *reply) notify(level notifyLevel, message string) *reply {
	return b.event(eventNotification, notification{Type: level, Message: message, Duration: displayMs[level]})
}

func (b *reply) exportQueued(report string, id uuid.UUID) *reply {
	return b.event(eventExportQueued, exportQueuedEvent{Report: report, ID: id.String()})
}

func (b *reply) set(name, value string) *reply {
	b.header.Set(name, value)
	return b
}

func (b *reply) html(markup string) *reply {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(markup)
	return b
}

func (b *reply) json(v any) *reply {
	data, err := json.Marshal(v)
	if err != nil {
		b.status = http.StatusInternalServerError
		data = []byte(`{"error":{"kind":"internal","message":"encoding failed"}}`)
	}
	b.header.Set("Content-Type", "application/json")
	b.body = append(data, '\n')
	return b
}

func (b *reply) send(w http.ResponseWriter) {
	for name, values := range b.header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if len(b.events) > 0 {
		if data, err := json.Marshal(b.events); err == nil {
			w.Header().Set("HX-Trigger", string(data))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// jsonReply answers with v encoded as JSON.
func jsonReply(status int, v any) *reply {
	return newReply(status).json(v)
}

// jsonError answers with {"error":{"kind","message"}}.
func jsonError(status int, kind, message string) *reply {
	return jsonReply(status, map[string]errorJSON{"error": {Kind: kind, Message: message}})
}

// htmlError answers an htmx request with an escaped error fragment and an
// error notification, since htmx does not swap 4xx/5xx bodies by default.
func htmlError(status int, kind, message string) *reply {
	return newReply(status).
		notify(notifyError, message).
		html(`<div class="error" data-kind="` + template.HTMLEscapeString(kind) + `">` +
			template.HTMLEscapeString(message) + `</div>`)
}

// storeUnavailable answers a report section while the store is unreachable.
func storeUnavailable(message string, retryAfter time.Duration) *reply {
	seconds := int(retryAfter / time.Second)
	return newReply(http.StatusServiceUnavailable).
		set("Retry-After", strconv.Itoa(seconds)).
		event(eventStoreUnavailable, storeUnavailableEvent{Message: message, RetryAfter: seconds}).
		html(`<div class="error" data-kind="connection">` + template.HTMLEscapeString(message) + `</div>`)
}
