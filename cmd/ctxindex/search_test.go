package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

func TestParseFilterFlags(t *testing.T) {
	spec, err := parseFilterFlags(`{"last_modified": {"gte": 1700000000}, "category": "meeting"}`,
		[]string{"context_id=CTX-1", "chunk_index=0", "category=[\"planning\",\"process\"]", "title=Q3 plan"})
	require.NoError(t, err)

	assert.Equal(t, filter.Spec{
		"last_modified": map[string]any{"gte": float64(1700000000)},
		"category":      []any{"planning", "process"},
		"context_id":    "CTX-1",
		"chunk_index":   float64(0),
		"title":         "Q3 plan",
	}, spec)
}

func TestParseFilterFlags_Errors(t *testing.T) {
	_, err := parseFilterFlags("[1,2]", nil)
	assert.Error(t, err)

	_, err = parseFilterFlags("", []string{"no-equals"})
	assert.Error(t, err)

	_, err = parseFilterFlags("", []string{"=value"})
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("a\n\nb   c", 10))
	assert.Equal(t, "abc...", preview("abcdef", 3))
}
