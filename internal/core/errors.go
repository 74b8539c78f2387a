package core

import (
	"errors"
	"fmt"
)

// ErrReportNotFound is returned when a report name is not in the catalogue.
var ErrReportNotFound = errors.New("report not found")

// InputError reports an out-of-enumeration filter value.
type InputError struct {
	Field  Field
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ConnectionError means the data store is unreachable or refused the credentials.
// It is fatal for a whole render cycle.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store connection (%s): %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryErrorKind narrows down why a single report failed.
type QueryErrorKind string

const (
	QueryKindInvalid QueryErrorKind = "query"
	QueryKindSchema  QueryErrorKind = "schema"
	QueryKindTimeout QueryErrorKind = "timeout"
)

// QueryError is a failure isolated to one report.
type QueryError struct {
	Report string
	Kind   QueryErrorKind
	Err    error
}

func (e *QueryError) Error() string {
	if e.Report == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("report %s: %s error: %v", e.Report, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err (or anything it wraps) is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsInputError reports whether err is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
