// Package filter turns caller-supplied filter maps into typed expressions
// and renders them as OData-style boolean query strings.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Expr is a parsed filter expression. Backends translate it with a type
// switch over the concrete variants below.
type Expr interface {
	// String renders the expression as a boolean query string.
	String() string
	// Match evaluates the expression against a flat field map.
	Match(fields map[string]any) bool
}

// Eq matches when Field equals Value.
type Eq struct {
	Field string
	Value any
}

// OneOf matches when Field equals any of Values.
type OneOf struct {
	Field  string
	Values []any
}

// Contains matches when Field contains Value as a substring. Tag lists are
// stored as one delimited string, so this is how a single tag is matched.
type Contains struct {
	Field string
	Value string
}

// TextSearch matches when every term of Value occurs in Field.
type TextSearch struct {
	Field string
	Value string
}

// StartsWith matches string fields with the given prefix.
type StartsWith struct {
	Field string
	Value string
}

// EndsWith matches string fields with the given suffix.
type EndsWith struct {
	Field string
	Value string
}

// Range bounds a numeric field. Nil bounds are open.
type Range struct {
	Field string
	Gt    *float64
	Gte   *float64
	Lt    *float64
	Lte   *float64
}

// And matches when all Exprs match.
type And struct {
	Exprs []Expr
}

// Or matches when any of Exprs matches.
type Or struct {
	Exprs []Expr
}

func (e Eq) String() string {
	return fmt.Sprintf("%s eq %s", e.Field, literal(e.Value))
}

func (e OneOf) String() string {
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		parts[i] = Eq{Field: e.Field, Value: v}.String()
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func (e Contains) String() string {
	return fmt.Sprintf("contains(%s, %s)", e.Field, quote(e.Value))
}

func (e TextSearch) String() string {
	return fmt.Sprintf("search.ismatch(%s, %s)", quote(e.Value), quote(e.Field))
}

func (e StartsWith) String() string {
	return fmt.Sprintf("startswith(%s, %s)", e.Field, quote(e.Value))
}

func (e EndsWith) String() string {
	return fmt.Sprintf("endswith(%s, %s)", e.Field, quote(e.Value))
}

func (e Range) String() string {
	var parts []string
	add := func(op string, v *float64) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s %s %s", e.Field, op, formatFloat(*v)))
		}
	}
	add("gt", e.Gt)
	add("ge", e.Gte)
	add("lt", e.Lt)
	add("le", e.Lte)
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " and ") + ")"
}

func (e And) String() string {
	parts := make([]string, len(e.Exprs))
	for i, x := range e.Exprs {
		parts[i] = x.String()
	}
	return strings.Join(parts, " and ")
}

func (e Or) String() string {
	parts := make([]string, len(e.Exprs))
	for i, x := range e.Exprs {
		parts[i] = x.String()
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

// quote wraps s in single quotes, doubling embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func literal(v any) string {
	switch x := v.(type) {
	case string:
		return quote(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	if f, ok := toFloat(v); ok {
		return formatFloat(f)
	}
	return quote(fmt.Sprint(v))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case time.Time:
		return float64(x.Unix()), true
	}
	return 0, false
}
