package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

func TestToQdrantFilter_Nil(t *testing.T) {
	qf, residual := toQdrantFilter(nil)
	assert.Nil(t, qf)
	assert.Nil(t, residual)
}

func TestToQdrantFilter_PushesSupportedClauses(t *testing.T) {
	expr, err := filter.Parse(filter.Spec{
		"category":      "technical",
		"context_id":    []string{"A", "B"},
		"tags_contains": "x",
		"chunk_index":   map[string]any{"gte": 1},
	})
	require.NoError(t, err)

	qf, residual := toQdrantFilter(expr)
	assert.Nil(t, residual)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 4)

	keys := make([]string, 0, len(qf.Must))
	for _, c := range qf.Must {
		keys = append(keys, c.GetField().GetKey())
	}
	assert.Equal(t, []string{"category", "chunk_index", "context_id", "tags"}, keys)
	assert.Equal(t, "x", qf.Must[3].GetField().GetMatch().GetText())
	assert.Equal(t, []string{"A", "B"}, qf.Must[2].GetField().GetMatch().GetKeywords().GetStrings())
}

func TestToQdrantFilter_PrefixIsResidual(t *testing.T) {
	expr, err := filter.Parse(filter.Spec{"category": "technical", "title_startswith": "Intro"})
	require.NoError(t, err)

	qf, residual := toQdrantFilter(expr)
	require.NotNil(t, qf)
	assert.Len(t, qf.Must, 1)
	assert.Equal(t, filter.StartsWith{Field: "title", Value: "Intro"}, residual)
}

func TestToQdrantFilter_OrWithResidualStaysWhole(t *testing.T) {
	expr, err := filter.Parse(filter.Spec{"title_endswith": []string{"a", "b"}})
	require.NoError(t, err)

	qf, residual := toQdrantFilter(expr)
	assert.Nil(t, qf)
	assert.IsType(t, filter.Or{}, residual)
}

func TestToQdrantFilter_TagsContainsIsCaseInsensitive(t *testing.T) {
	expr, err := filter.Parse(filter.Spec{"tags_contains": "Deploy"})
	require.NoError(t, err)

	qf, residual := toQdrantFilter(expr)
	assert.Nil(t, residual)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 1)
	assert.Equal(t, "deploy", qf.Must[0].GetField().GetMatch().GetText())

	expr, err = filter.Parse(filter.Spec{"title_contains": "Deploy"})
	require.NoError(t, err)
	qf, _ = toQdrantFilter(expr)
	require.NotNil(t, qf)
	require.Len(t, qf.Must, 1)
	assert.Equal(t, "Deploy", qf.Must[0].GetField().GetMatch().GetText())
}

func TestRecordFields_LastModifiedAtResidual(t *testing.T) {
	rec := Record{LastModified: time.Date(2024, 1, 15, 9, 30, 0, 0, time.FixedZone("X", 7200))}
	fields := rec.Fields()
	assert.Equal(t, "2024-01-15T07:30:00Z", fields[FieldLastModifiedAt])

	expr, err := filter.Parse(filter.Spec{"last_modified_at_startswith": "2024-01"})
	require.NoError(t, err)
	_, residual := toQdrantFilter(expr)
	require.NotNil(t, residual)
	assert.True(t, residual.Match(fields))
}
