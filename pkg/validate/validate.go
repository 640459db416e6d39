// Package validate performs local, pre-flight checks on search call
// parameters so that malformed requests never reach the network. The
// checks are purely lexical: they cannot catch unknown-field errors,
// which only surface from the service itself.
package validate

import (
	"fmt"
	"strings"
)

const (
	// MaxSearchTextLength is the longest search expression accepted.
	MaxSearchTextLength = 1000
	// MaxTop is the largest page size the service accepts.
	MaxTop = 1000
	// MaxSkip is the deepest offset the service accepts.
	MaxSkip = 100000
)

// Outcome is the result of a pre-flight validation.
type Outcome struct {
	Valid   bool
	Message string
}

func ok() Outcome {
	return Outcome{Valid: true}
}

func fail(format string, args ...interface{}) Outcome {
	return Outcome{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// invalidFilterOperators are symbolic comparison operators that the OData
// filter syntax does not use; it requires named operators (eq, ne, gt,
// lt, ge, le, and, or, not).
var invalidFilterOperators = []string{"!=", "&&", "||", ">=", "<=", "=", "<", ">"}

// SearchText validates a search expression.
func SearchText(text string) Outcome {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail("search text must not be empty")
	}
	if len(text) > MaxSearchTextLength {
		return fail("search text exceeds %d characters", MaxSearchTextLength)
	}
	if strings.Count(text, `"`)%2 != 0 {
		return fail("search text has unbalanced quotes")
	}
	if strings.Count(text, "'")%2 != 0 {
		return fail("search text has unbalanced quotes")
	}
	if strings.Count(text, "(") != strings.Count(text, ")") {
		return fail("search text has unbalanced parentheses")
	}
	return ok()
}

// Paging validates top and skip bounds.
func Paging(top, skip int) Outcome {
	if top < 0 {
		return fail("top must not be negative")
	}
	if top > MaxTop {
		return fail("top must not exceed %d", MaxTop)
	}
	if skip < 0 {
		return fail("skip must not be negative")
	}
	if skip > MaxSkip {
		return fail("skip must not exceed %d", MaxSkip)
	}
	return ok()
}

// Filter validates an OData filter expression. An empty filter is valid.
func Filter(filter string) Outcome {
	if strings.TrimSpace(filter) == "" {
		return ok()
	}
	if strings.Count(filter, "(") != strings.Count(filter, ")") {
		return fail("filter has unbalanced parentheses")
	}
	if op := findInvalidOperator(filter); op != "" {
		return fail("filter uses operator %q; OData filters use named operators (eq, ne, gt, lt, ge, le, and, or)", op)
	}
	return ok()
}

// findInvalidOperator returns the first symbolic operator found outside
// of string literals, or "".
func findInvalidOperator(filter string) string {
	stripped := stripStringLiterals(filter)
	for _, op := range invalidFilterOperators {
		if strings.Contains(stripped, op) {
			return op
		}
	}
	return ""
}

// stripStringLiterals blanks out single-quoted literals so operator
// characters inside values (e.g. category eq 'a=b') are not flagged.
func stripStringLiterals(s string) string {
	var b strings.Builder
	inLiteral := false
	for _, r := range s {
		switch {
		case r == '\'':
			inLiteral = !inLiteral
			b.WriteRune(' ')
		case inLiteral:
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
