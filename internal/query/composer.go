// Package query merges a FilterSet into a report's SQL template.
//
// Composition never interpolates operator input into SQL: every condition is
// emitted as "<prefix><field> = ?" and the value travels in Query.Args. The
// Inline rendering exists only for display and logging.
//
// Templates choose where the conditions go with a marker comment:
//
//	SELECT ... FROM aggregated_user /*:where*/ GROUP BY state
//	SELECT ... FROM top_map WHERE pincode IS NOT NULL /*:and*/ GROUP BY pincode
//
// Markers are SQL comments, so a template composed without filters is still
// valid SQL and is returned byte-for-byte. Unmarked templates get their
// conditions in front of the first top-level GROUP BY, HAVING, ORDER BY or
// LIMIT, or after the last code token of the statement. Unmarked templates
// with a top-level WHERE or set operator are rejected.
package query

import (
	"errors"
	"strconv"
	"strings"

	"insights/internal/core"
)

const (
	// MarkerWhere is replaced by " WHERE <conditions>".
	MarkerWhere = "/*:where*/"
	// MarkerAnd is replaced by " AND <conditions>" for templates with their own WHERE.
	MarkerAnd = "/*:and*/"
)

var (
	// ErrMultipleMarkers is returned when a template has more than one insertion marker.
	ErrMultipleMarkers = errors.New("template has more than one filter marker")
	// ErrUnmarkedWhere is returned when an unmarked template already has a top-level WHERE.
	ErrUnmarkedWhere = errors.New("template has its own WHERE clause but no filter marker")
	// ErrUnmarkedCompound is returned when an unmarked template combines SELECTs
	// with UNION, INTERSECT or EXCEPT.
	ErrUnmarkedCompound = errors.New("compound template needs a filter marker")
)

// Condition is one equality constraint produced from a set filter field.
type Condition struct {
	Field  core.Field
	Column string
	Value  any
}

// Query is a composed, parameterized statement.
type Query struct {
	Template   string
	SQL        string
	Args       []any
	Conditions []Condition
}

// Compose appends one condition per set field of f to template. Fields are
// emitted in state, year, quarter order, each column prefixed with prefix
// (e.g. "i." for joined reports). With no set fields the template is returned
// unchanged.
func Compose(template string, f core.FilterSet, prefix string) (Query, error) {
	conds := Conditions(f, prefix)
	q := Query{Template: template, SQL: template, Conditions: conds}
	if len(conds) == 0 {
		return q, nil
	}

	sql, err := assemble(template, conds, placeholder)
	if err != nil {
		return Query{}, err
	}
	q.SQL = sql
	q.Args = make([]any, len(conds))
	for i, c := range conds {
		q.Args[i] = c.Value
	}
	return q, nil
}

// Conditions lists the conditions a FilterSet produces.
func Conditions(f core.FilterSet, prefix string) []Condition {
	var conds []Condition
	for _, field := range core.AllFields {
		if !f.Has(field) {
			continue
		}
		conds = append(conds, Condition{
			Field:  field,
			Column: prefix + string(field),
			Value:  f.Value(field),
		})
	}
	return conds
}

// Inline renders the query with literal values: strings single-quoted with
// embedded quotes doubled, numbers bare. Never send this to the store.
func (q Query) Inline() string {
	if len(q.Conditions) == 0 {
		return q.Template
	}
	sql, err := assemble(q.Template, q.Conditions, literal)
	if err != nil {
		return q.SQL
	}
	return sql
}

// HasFilters reports whether any condition was composed in.
func (q Query) HasFilters() bool {
	return len(q.Conditions) > 0
}

func placeholder(c Condition) string {
	return c.Column + " = ?"
}

func literal(c Condition) string {
	switch v := c.Value.(type) {
	case string:
		return c.Column + " = '" + strings.ReplaceAll(v, "'", "''") + "'"
	case int:
		return c.Column + " = " + strconv.Itoa(v)
	default:
		return c.Column + " = ?"
	}
}

func assemble(template string, conds []Condition, render func(Condition) string) (string, error) {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = render(c)
	}
	joined := strings.Join(parts, " AND ")

	l := scanTemplate(template)
	if len(l.markers) > 1 {
		return "", ErrMultipleMarkers
	}
	if len(l.markers) == 1 {
		m := l.markers[0]
		keyword := " WHERE "
		if m.keyword == MarkerAnd {
			keyword = " AND "
		}
		return splice(template, m.code, m.pos, len(m.keyword), keyword+joined), nil
	}

	code, pos := l.end, -1
	for _, c := range l.clauses {
		switch c.keyword {
		case "WHERE":
			return "", ErrUnmarkedWhere
		case "UNION", "INTERSECT", "EXCEPT":
			return "", ErrUnmarkedCompound
		}
		if pos < 0 {
			code, pos = c.code, c.pos
		}
	}
	if pos < 0 {
		pos = l.end
	}
	return splice(template, code, pos, 0, " WHERE "+joined), nil
}

// splice replaces template[pos:pos+n] with insert. When only whitespace
// separates code from pos it is collapsed; comments in between are kept so the
// insert never lands inside a line comment. One space is kept before whatever
// follows.
func splice(template string, code, pos, n int, insert string) string {
	before := template[:pos]
	if strings.TrimSpace(template[code:pos]) == "" {
		before = template[:code]
	}
	after := template[pos+n:]
	var b strings.Builder
	b.Grow(len(before) + len(insert) + len(after) + 1)
	b.WriteString(before)
	b.WriteString(insert)
	if after != "" && !isSpace(after[0]) && after[0] != ';' && after[0] != ')' {
		b.WriteByte(' ')
	}
	b.WriteString(after)
	return b.String()
}
