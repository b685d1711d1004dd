package filter

import (
	"fmt"
	"strings"
)

func (e Eq) Match(fields map[string]any) bool {
	return anyValue(fields[e.Field], func(v any) bool { return equal(v, e.Value) })
}

func (e OneOf) Match(fields map[string]any) bool {
	for _, want := range e.Values {
		if (Eq{Field: e.Field, Value: want}).Match(fields) {
			return true
		}
	}
	return false
}

func (e Contains) Match(fields map[string]any) bool {
	needle := strings.ToLower(e.Value)
	return anyValue(fields[e.Field], func(v any) bool {
		s, ok := v.(string)
		return ok && strings.Contains(strings.ToLower(s), needle)
	})
}

func (e TextSearch) Match(fields map[string]any) bool {
	terms := strings.Fields(strings.ToLower(e.Value))
	return anyValue(fields[e.Field], func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		s = strings.ToLower(s)
		for _, t := range terms {
			if !strings.Contains(s, t) {
				return false
			}
		}
		return true
	})
}

func (e StartsWith) Match(fields map[string]any) bool {
	return anyValue(fields[e.Field], func(v any) bool {
		s, ok := v.(string)
		return ok && strings.HasPrefix(s, e.Value)
	})
}

func (e EndsWith) Match(fields map[string]any) bool {
	return anyValue(fields[e.Field], func(v any) bool {
		s, ok := v.(string)
		return ok && strings.HasSuffix(s, e.Value)
	})
}

func (e Range) Match(fields map[string]any) bool {
	f, ok := toFloat(fields[e.Field])
	if !ok {
		return false
	}
	switch {
	case e.Gt != nil && !(f > *e.Gt):
		return false
	case e.Gte != nil && !(f >= *e.Gte):
		return false
	case e.Lt != nil && !(f < *e.Lt):
		return false
	case e.Lte != nil && !(f <= *e.Lte):
		return false
	}
	return true
}

func (e And) Match(fields map[string]any) bool {
	for _, x := range e.Exprs {
		if !x.Match(fields) {
			return false
		}
	}
	return true
}

func (e Or) Match(fields map[string]any) bool {
	for _, x := range e.Exprs {
		if x.Match(fields) {
			return true
		}
	}
	return false
}

// anyValue applies pred to v, or to each element when v is a string list.
func anyValue(v any, pred func(any) bool) bool {
	switch x := v.(type) {
	case nil:
		return false
	case []string:
		for _, s := range x {
			if pred(s) {
				return true
			}
		}
		return false
	case []any:
		for _, s := range x {
			if pred(s) {
				return true
			}
		}
		return false
	}
	return pred(v)
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
