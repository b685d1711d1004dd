package storage

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// toBleveQuery translates expr into a Bleve query. Clauses the mapping
// cannot answer exactly (equality on analyzed text, prefix matches inside
// the tag list) are returned as the residual.
func toBleveQuery(expr filter.Expr) (blevequery.Query, filter.Expr) {
	if expr == nil {
		return nil, nil
	}

	children := []filter.Expr{expr}
	if and, ok := expr.(filter.And); ok {
		children = and.Exprs
	}

	var (
		pushed   []blevequery.Query
		residual []filter.Expr
	)
	for _, child := range children {
		if q, ok := bleveClause(child); ok {
			pushed = append(pushed, q)
		} else {
			residual = append(residual, child)
		}
	}

	var q blevequery.Query
	switch len(pushed) {
	case 0:
	case 1:
		q = pushed[0]
	default:
		q = bleve.NewConjunctionQuery(pushed...)
	}
	switch len(residual) {
	case 0:
		return q, nil
	case 1:
		return q, residual[0]
	}
	return q, filter.And{Exprs: residual}
}

func isKeywordField(f string) bool {
	for _, k := range keywordFields {
		if k == f {
			return true
		}
	}
	return false
}

func isNumericField(f string) bool {
	for _, k := range numericFields {
		if k == f {
			return true
		}
	}
	return false
}

func isAnalyzedField(f string) bool {
	return f == FieldText || f == FieldTitle
}

func bleveClause(expr filter.Expr) (blevequery.Query, bool) {
	switch e := expr.(type) {
	case filter.Eq:
		return bleveEq(e.Field, e.Value)

	case filter.OneOf:
		qs := make([]blevequery.Query, 0, len(e.Values))
		for _, v := range e.Values {
			q, ok := bleveEq(e.Field, v)
			if !ok {
				return nil, false
			}
			qs = append(qs, q)
		}
		return bleve.NewDisjunctionQuery(qs...), true

	case filter.Contains:
		if e.Field != FieldTags || strings.ContainsAny(e.Value, "*?") {
			return nil, false
		}
		q := bleve.NewWildcardQuery("*" + strings.ToLower(e.Value) + "*")
		q.SetField(e.Field)
		return q, true

	case filter.TextSearch:
		if !isAnalyzedField(e.Field) {
			return nil, false
		}
		q := bleve.NewMatchQuery(e.Value)
		q.SetField(e.Field)
		q.SetOperator(blevequery.MatchQueryOperatorAnd)
		return q, true

	case filter.StartsWith:
		if !isKeywordField(e.Field) || e.Field == FieldTags {
			return nil, false
		}
		q := bleve.NewPrefixQuery(e.Value)
		q.SetField(e.Field)
		return q, true

	case filter.EndsWith:
		if !isKeywordField(e.Field) || e.Field == FieldTags || strings.ContainsAny(e.Value, "*?") {
			return nil, false
		}
		q := bleve.NewWildcardQuery("*" + e.Value)
		q.SetField(e.Field)
		return q, true

	case filter.Range:
		if !isNumericField(e.Field) {
			return nil, false
		}
		yes, no := true, false
		var qs []blevequery.Query
		add := func(min, max *float64, minIncl, maxIncl *bool) {
			q := bleve.NewNumericRangeInclusiveQuery(min, max, minIncl, maxIncl)
			q.SetField(e.Field)
			qs = append(qs, q)
		}
		if e.Gt != nil {
			add(e.Gt, nil, &no, nil)
		}
		if e.Gte != nil {
			add(e.Gte, nil, &yes, nil)
		}
		if e.Lt != nil {
			add(nil, e.Lt, nil, &no)
		}
		if e.Lte != nil {
			add(nil, e.Lte, nil, &yes)
		}
		if len(qs) == 1 {
			return qs[0], true
		}
		return bleve.NewConjunctionQuery(qs...), true

	case filter.And:
		qs := make([]blevequery.Query, 0, len(e.Exprs))
		for _, x := range e.Exprs {
			q, ok := bleveClause(x)
			if !ok {
				return nil, false
			}
			qs = append(qs, q)
		}
		return bleve.NewConjunctionQuery(qs...), true

	case filter.Or:
		qs := make([]blevequery.Query, 0, len(e.Exprs))
		for _, x := range e.Exprs {
			q, ok := bleveClause(x)
			if !ok {
				return nil, false
			}
			qs = append(qs, q)
		}
		return bleve.NewDisjunctionQuery(qs...), true
	}
	return nil, false
}

func bleveEq(field string, v any) (blevequery.Query, bool) {
	switch x := v.(type) {
	case string:
		if !isKeywordField(field) || field == FieldTags {
			return nil, false
		}
		q := bleve.NewTermQuery(x)
		q.SetField(field)
		return q, true
	case bool:
		if field != FieldPlaceholder {
			return nil, false
		}
		q := bleve.NewBoolFieldQuery(x)
		q.SetField(field)
		return q, true
	}
	f, ok := toNumber(v)
	if !ok || !isNumericField(field) {
		return nil, false
	}
	yes := true
	q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &yes, &yes)
	q.SetField(field)
	return q, true
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
