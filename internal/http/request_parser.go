// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// dashboard filters from query strings and export requests from form or JSON
// bodies.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"insights/internal/core"
)

// maxBodyBytes caps request bodies read by RequestBodyParser.
const maxBodyBytes = 64 << 10

// ParseFilterParams reads state, year and quarter from query or form values.
// Empty values leave the filter unset.
func ParseFilterParams(values url.Values) (core.FilterSet, error) {
	return core.ParseFilterSet(
		values.Get(string(core.FieldState)),
		values.Get(string(core.FieldYear)),
		values.Get(string(core.FieldQuarter)),
	)
}

// FilterQuery renders f as a query string, skipping unset fields, so links
// and htmx requests carry the current filters.
func FilterQuery(f core.FilterSet) string {
	values := url.Values{}
	if f.State != "" {
		values.Set(string(core.FieldState), f.State)
	}
	if f.Year != 0 {
		values.Set(string(core.FieldYear), strconv.Itoa(f.Year))
	}
	if f.Quarter != 0 {
		values.Set(string(core.FieldQuarter), strconv.Itoa(f.Quarter))
	}
	return values.Encode()
}

// ReportName returns the {name} route variable.
func ReportName(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["name"])
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Filters parses the state, year and quarter fields of the body.
func (p *RequestBodyParser) Filters() (core.FilterSet, error) {
	return core.ParseFilterSet(p.Get(string(core.FieldState)), p.Get(string(core.FieldYear)), p.Get(string(core.FieldQuarter)))
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// wantsJSON reports whether the client asked for JSON rather than an HTMX
// fragment.
func wantsJSON(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
