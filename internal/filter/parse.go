package filter

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidField is returned for field names that are not identifiers.
	ErrInvalidField = errors.New("invalid filter field")
	// ErrUnknownOperator is returned for unrecognized structured operators.
	ErrUnknownOperator = errors.New("unknown filter operator")
	// ErrInvalidValue is returned when a value cannot be used with its operator.
	ErrInvalidValue = errors.New("invalid filter value")
)

// Spec is the caller-facing filter map: field name to scalar, list, or
// operator map. Keys may carry an operator suffix such as "tags_contains".
type Spec map[string]any

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type op string

const (
	opEq         op = "eq"
	opIn         op = "in"
	opContains   op = "contains"
	opTextSearch op = "text_search"
	opStartsWith op = "startswith"
	opEndsWith   op = "endswith"
	opGt         op = "gt"
	opGte        op = "gte"
	opLt         op = "lt"
	opLte        op = "lte"
)

// suffixOps are checked in order; "_text_search" must not be read as "_search".
var suffixOps = []op{opTextSearch, opContains, opStartsWith, opEndsWith}

// Build parses spec and renders it. An empty or nil spec yields "".
func Build(spec Spec) (string, error) {
	expr, err := Parse(spec)
	if err != nil || expr == nil {
		return "", err
	}
	return expr.String(), nil
}

// Parse converts spec into an Expr. Entries are AND-combined in sorted key
// order so the same spec always yields the same expression. Nil values and
// empty lists are ignored; an empty spec yields a nil Expr.
func Parse(spec Spec) (Expr, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var exprs []Expr
	for _, key := range keys {
		e, err := parseEntry(key, spec[key])
		if err != nil {
			return nil, err
		}
		if e != nil {
			exprs = append(exprs, e)
		}
	}
	return combine(exprs, func(x []Expr) Expr { return And{Exprs: x} }), nil
}

func parseEntry(key string, value any) (Expr, error) {
	if value == nil {
		return nil, nil
	}
	field, suffix := splitSuffix(key)
	if !fieldPattern.MatchString(field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, key)
	}

	if m, ok := value.(map[string]any); ok {
		if suffix != "" {
			return nil, fmt.Errorf("%w: %q takes a value, not an operator map", ErrInvalidValue, key)
		}
		return parseOperators(field, m)
	}

	if list, ok := asList(value); ok {
		exprs := make([]Expr, 0, len(list))
		for _, v := range list {
			if v == nil {
				continue
			}
			e, err := leaf(field, suffix, v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			exprs = append(exprs, e)
		}
		if suffix == "" && len(exprs) > 1 {
			values := make([]any, len(exprs))
			for i, e := range exprs {
				values[i] = e.(Eq).Value
			}
			return OneOf{Field: field, Values: values}, nil
		}
		return combine(exprs, func(x []Expr) Expr { return Or{Exprs: x} }), nil
	}

	e, err := leaf(field, suffix, value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return e, nil
}

func parseOperators(field string, m map[string]any) (Expr, error) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var (
		exprs []Expr
		rng   = Range{Field: field}
		isRng bool
	)
	for _, name := range names {
		v := m[name]
		if v == nil {
			continue
		}
		switch o := op(strings.ToLower(name)); o {
		case opEq:
			e, err := leaf(field, "", v)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		case opIn:
			e, err := parseEntry(field, v)
			if err != nil {
				return nil, err
			}
			if e != nil {
				exprs = append(exprs, e)
			}
		case opContains, opTextSearch, opStartsWith, opEndsWith:
			e, err := leaf(field, o, v)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		case opGt, opGte, opLt, opLte:
			f, err := bound(v)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", field, name, err)
			}
			isRng = true
			switch o {
			case opGt:
				rng.Gt = &f
			case opGte:
				rng.Gte = &f
			case opLt:
				rng.Lt = &f
			case opLte:
				rng.Lte = &f
			}
		default:
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownOperator, field, name)
		}
	}
	if isRng {
		exprs = append(exprs, rng)
	}
	return combine(exprs, func(x []Expr) Expr { return And{Exprs: x} }), nil
}

// leaf builds the expression for one scalar value.
func leaf(field string, o op, v any) (Expr, error) {
	if o == "" || o == opEq {
		if !isScalar(v) {
			return nil, fmt.Errorf("%w: %T", ErrInvalidValue, v)
		}
		return Eq{Field: field, Value: v}, nil
	}
	s, ok := v.(string)
	if !ok {
		if !isScalar(v) {
			return nil, fmt.Errorf("%w: %T", ErrInvalidValue, v)
		}
		s = fmt.Sprint(v)
	}
	switch o {
	case opContains:
		return Contains{Field: field, Value: s}, nil
	case opTextSearch:
		return TextSearch{Field: field, Value: s}, nil
	case opStartsWith:
		return StartsWith{Field: field, Value: s}, nil
	case opEndsWith:
		return EndsWith{Field: field, Value: s}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, o)
}

func splitSuffix(key string) (string, op) {
	for _, o := range suffixOps {
		if s := "_" + string(o); strings.HasSuffix(key, s) && len(key) > len(s) {
			return strings.TrimSuffix(key, s), o
		}
	}
	return key, ""
}

func combine(exprs []Expr, join func([]Expr) Expr) Expr {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return join(exprs)
}

func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, time.Time:
		return true
	}
	_, ok := toFloat(v)
	return ok
}

// bound converts a range operand to a float. Timestamps become unix seconds.
func bound(v any) (float64, error) {
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrInvalidValue, v)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.Unix()), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
}
