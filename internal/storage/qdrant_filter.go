package storage

import (
	"fmt"
	"math"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// toQdrantFilter translates expr into a Qdrant filter. Clauses Qdrant has
// no operator for (prefix and suffix matches) come back as the residual,
// which the caller applies to returned points.
func toQdrantFilter(expr filter.Expr) (*qdrant.Filter, filter.Expr) {
	if expr == nil {
		return nil, nil
	}

	children := []filter.Expr{expr}
	if and, ok := expr.(filter.And); ok {
		children = and.Exprs
	}

	var (
		must     []*qdrant.Condition
		residual []filter.Expr
	)
	for _, child := range children {
		if c, ok := qdrantCondition(child); ok {
			must = append(must, c)
		} else {
			residual = append(residual, child)
		}
	}

	var qf *qdrant.Filter
	if len(must) > 0 {
		qf = &qdrant.Filter{Must: must}
	}
	switch len(residual) {
	case 0:
		return qf, nil
	case 1:
		return qf, residual[0]
	}
	return qf, filter.And{Exprs: residual}
}

func qdrantCondition(expr filter.Expr) (*qdrant.Condition, bool) {
	switch e := expr.(type) {
	case filter.Eq:
		return qdrantEq(e.Field, e.Value)

	case filter.OneOf:
		keywords := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			s, ok := v.(string)
			if !ok {
				break
			}
			keywords = append(keywords, s)
		}
		if len(keywords) == len(e.Values) {
			return qdrant.NewMatchKeywords(e.Field, keywords...), true
		}
		should := make([]*qdrant.Condition, 0, len(e.Values))
		for _, v := range e.Values {
			c, ok := qdrantEq(e.Field, v)
			if !ok {
				return nil, false
			}
			should = append(should, c)
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should}), true

	case filter.Contains:
		// Tags are stored lower-cased.
		if e.Field == FieldTags {
			return qdrant.NewMatchText(e.Field, strings.ToLower(e.Value)), true
		}
		return qdrant.NewMatchText(e.Field, e.Value), true

	case filter.TextSearch:
		return qdrant.NewMatchText(e.Field, e.Value), true

	case filter.Range:
		return qdrant.NewRange(e.Field, &qdrant.Range{Gt: e.Gt, Gte: e.Gte, Lt: e.Lt, Lte: e.Lte}), true

	case filter.And:
		must := make([]*qdrant.Condition, 0, len(e.Exprs))
		for _, x := range e.Exprs {
			c, ok := qdrantCondition(x)
			if !ok {
				return nil, false
			}
			must = append(must, c)
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Must: must}), true

	case filter.Or:
		should := make([]*qdrant.Condition, 0, len(e.Exprs))
		for _, x := range e.Exprs {
			c, ok := qdrantCondition(x)
			if !ok {
				return nil, false
			}
			should = append(should, c)
		}
		return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should}), true
	}
	return nil, false
}

func qdrantEq(field string, v any) (*qdrant.Condition, bool) {
	switch x := v.(type) {
	case string:
		return qdrant.NewMatch(field, x), true
	case bool:
		return qdrant.NewMatchBool(field, x), true
	case int:
		return qdrant.NewMatchInt(field, int64(x)), true
	case int64:
		return qdrant.NewMatchInt(field, x), true
	case float64:
		if x == math.Trunc(x) {
			return qdrant.NewMatchInt(field, int64(x)), true
		}
		return qdrant.NewRange(field, &qdrant.Range{Gte: &x, Lte: &x}), true
	}
	return qdrant.NewMatch(field, fmt.Sprint(v)), true
}
