package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"insights/internal/core"
)

// ExportRequestMessage asks the worker to re-run a report and export its table.
// The worker recomposes the query from Report and Filters; no SQL travels on
// the wire.
type ExportRequestMessage struct {
	ID          uuid.UUID      `json:"id"`
	Report      string         `json:"report"`
	Filters     core.FilterSet `json:"filters"`
	RequestedAt time.Time      `json:"requested_at"`
}

// NewExportRequest creates a request with a fresh ID.
func NewExportRequest(report string, filters core.FilterSet) *ExportRequestMessage {
	return &ExportRequestMessage{
		ID:          uuid.New(),
		Report:      report,
		Filters:     filters,
		RequestedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportRequestFromJSON decodes and checks a message body.
func ExportRequestFromJSON(data []byte) (*ExportRequestMessage, error) {
	var msg ExportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, errors.New("export request without id")
	}
	if msg.Report == "" {
		return nil, fmt.Errorf("export request %s without report", msg.ID)
	}
	if err := msg.Filters.Validate(); err != nil {
		return nil, fmt.Errorf("export request %s: %w", msg.ID, err)
	}
	return &msg, nil
}

// PermanentError marks a handler failure that redelivery cannot fix. The
// consumer rejects such messages into the failed queue instead of requeueing.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
