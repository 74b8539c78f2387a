package query

import "strings"

// clause is a top-level keyword or a filter marker found in a template.
type clause struct {
	keyword string
	pos     int
	// code is the offset just past the last code token before pos.
	code int
}

// layout is what scanTemplate learns about a template.
type layout struct {
	// clauses are top-level (depth 0) WHERE, set operators and trailing clause keywords.
	clauses []clause
	// markers are filter marker comments at any depth, outside literals.
	markers []clause
	// end is the offset just past the last code token, ignoring trailing
	// whitespace, comments and semicolons.
	end int
}

// trailingKeywords start clauses that must come after WHERE.
var trailingKeywords = []string{"GROUP BY", "HAVING", "ORDER BY", "LIMIT"}

// setOperators combine SELECTs; a single WHERE cannot constrain every branch.
var setOperators = []string{"UNION", "INTERSECT", "EXCEPT"}

// scanTemplate walks sql outside string literals and comments.
func scanTemplate(sql string) layout {
	var l layout
	depth := 0
	n := len(sql)

	for i := 0; i < n; {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(sql, i, c)
			l.end = i
			continue
		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
			continue
		case c == '/' && i+1 < n && sql[i+1] == '*':
			for _, m := range []string{MarkerWhere, MarkerAnd} {
				if strings.HasPrefix(sql[i:], m) {
					l.markers = append(l.markers, clause{keyword: m, pos: i, code: l.end})
				}
			}
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return l
			}
			i += end + 4
			continue
		case isSpace(c) || c == ';':
			i++
			continue
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		}

		if depth == 0 && isWordStart(sql, i) {
			if kw, ok := matchKeyword(sql, i); ok {
				l.clauses = append(l.clauses, clause{keyword: kw, pos: i, code: l.end})
				i += len(kw)
				l.end = i
				continue
			}
		}
		i++
		l.end = i
	}
	return l
}

// skipQuoted returns the index just past the literal opened at i. A doubled
// quote character inside the literal is an escaped quote.
func skipQuoted(sql string, i int, quote byte) int {
	i++
	for i < len(sql) {
		if sql[i] == '\\' && quote == '\'' {
			i += 2
			continue
		}
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return i
}

func matchKeyword(sql string, i int) (string, bool) {
	if hasWordAt(sql, i, "WHERE") {
		return "WHERE", true
	}
	for _, op := range setOperators {
		if hasWordAt(sql, i, op) {
			return op, true
		}
	}
	for _, kw := range trailingKeywords {
		first, second, twoWords := strings.Cut(kw, " ")
		if !twoWords {
			if hasWordAt(sql, i, kw) {
				return kw, true
			}
			continue
		}
		if !hasWordAt(sql, i, first) {
			continue
		}
		j := i + len(first)
		k := j
		for k < len(sql) && isSpace(sql[k]) {
			k++
		}
		if k > j && hasWordAt(sql, k, second) {
			return kw, true
		}
	}
	return "", false
}

// hasWordAt reports whether word (case-insensitive) starts at i and ends on a word boundary.
func hasWordAt(sql string, i int, word string) bool {
	end := i + len(word)
	if end > len(sql) || !strings.EqualFold(sql[i:end], word) {
		return false
	}
	return end == len(sql) || !isIdentChar(sql[end])
}

func isWordStart(sql string, i int) bool {
	return i == 0 || !isIdentChar(sql[i-1])
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '.' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
