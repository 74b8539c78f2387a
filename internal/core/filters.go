package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Field identifies one of the optional dashboard filters.
type Field string

const (
	FieldState   Field = "state"
	FieldYear    Field = "year"
	FieldQuarter Field = "quarter"
)

// AllFields lists the filter fields in composition order.
var AllFields = []Field{FieldState, FieldYear, FieldQuarter}

// Years offered by the year selector.
var Years = []int{2018, 2019, 2020, 2021, 2022, 2023}

// Quarters offered by the quarter selector.
var Quarters = []int{1, 2, 3, 4}

// IsValid reports whether f is a known filter field.
func (f Field) IsValid() bool {
	switch f {
	case FieldState, FieldYear, FieldQuarter:
		return true
	default:
		return false
	}
}

// Quoted reports whether values of the field are strings in SQL.
func (f Field) Quoted() bool {
	return f == FieldState
}

// FilterSet holds the operator's optional constraints.
// The zero value means no filter is active. Year and Quarter use 0 for "unset"
// since neither enumeration contains 0.
type FilterSet struct {
	State   string `json:"state,omitempty"`
	Year    int    `json:"year,omitempty"`
	Quarter int    `json:"quarter,omitempty"`
}

// IsEmpty returns true if no filters are set.
func (f FilterSet) IsEmpty() bool {
	return f.State == "" && f.Year == 0 && f.Quarter == 0
}

// Has reports whether the given field is set.
func (f FilterSet) Has(field Field) bool {
	switch field {
	case FieldState:
		return f.State != ""
	case FieldYear:
		return f.Year != 0
	case FieldQuarter:
		return f.Quarter != 0
	default:
		return false
	}
}

// Value returns the typed value for a set field, or nil.
func (f FilterSet) Value(field Field) any {
	if !f.Has(field) {
		return nil
	}
	switch field {
	case FieldState:
		return f.State
	case FieldYear:
		return f.Year
	case FieldQuarter:
		return f.Quarter
	}
	return nil
}

// Only returns a copy of f keeping just the listed fields.
func (f FilterSet) Only(fields ...Field) FilterSet {
	var out FilterSet
	for _, field := range fields {
		switch field {
		case FieldState:
			out.State = f.State
		case FieldYear:
			out.Year = f.Year
		case FieldQuarter:
			out.Quarter = f.Quarter
		}
	}
	return out
}

// Validate checks year and quarter against the offered enumerations.
// State is free text and never rejected.
func (f FilterSet) Validate() error {
	if f.Year != 0 && !contains(Years, f.Year) {
		return &InputError{Field: FieldYear, Value: strconv.Itoa(f.Year), Reason: fmt.Sprintf("must be one of %v", Years)}
	}
	if f.Quarter != 0 && !contains(Quarters, f.Quarter) {
		return &InputError{Field: FieldQuarter, Value: strconv.Itoa(f.Quarter), Reason: "must be between 1 and 4"}
	}
	return nil
}

// String renders the active filters for logs, e.g. "state=Karnataka year=2021".
func (f FilterSet) String() string {
	if f.IsEmpty() {
		return "none"
	}
	parts := make([]string, 0, 3)
	for _, field := range AllFields {
		if f.Has(field) {
			parts = append(parts, fmt.Sprintf("%s=%v", field, f.Value(field)))
		}
	}
	return strings.Join(parts, " ")
}

// ParseFilterSet builds a FilterSet from raw operator input. Empty strings mean
// "unset". Year and quarter must be integers inside their enumerations.
func ParseFilterSet(state, year, quarter string) (FilterSet, error) {
	f := FilterSet{State: CleanState(state)}

	if v := strings.TrimSpace(year); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return FilterSet{}, &InputError{Field: FieldYear, Value: v, Reason: "not a number"}
		}
		f.Year = y
	}
	if v := strings.TrimSpace(quarter); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return FilterSet{}, &InputError{Field: FieldQuarter, Value: v, Reason: "not a number"}
		}
		f.Quarter = q
	}

	if err := f.Validate(); err != nil {
		return FilterSet{}, err
	}
	return f, nil
}

// CleanState trims whitespace and drops control characters.
func CleanState(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

func contains(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
