//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

const integrationDim = 8

// setupTestStore creates a store on a throwaway collection.
// Skips test if Qdrant is not running.
func setupTestStore(t *testing.T) *QdrantStore {
	ctx := context.Background()
	store, err := NewQdrantStore(ctx, QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "test_" + uuid.New().String(),
		Dimension:  integrationDim,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	require.NoError(t, store.EnsureCollection(ctx), "Failed to ensure collection")

	t.Cleanup(func() {
		store.DropCollection(context.Background())
		store.Close()
	})
	return store
}

func vec(first float32) []float32 {
	v := make([]float32, integrationDim)
	v[0] = first
	v[1] = 1 - first
	return v
}

func TestQdrant_UpsertSearchRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc := testDoc("doc:a", 0, "CTX-1", "technical", "Introduction section content", vec(1))
	doc.Tags = []string{"ctx-1", "x"}
	errs, err := store.Upsert(ctx, []IndexDocument{doc})
	require.NoError(t, err)
	require.NoError(t, errs[0])

	results, err := store.Search(ctx, vec(1), nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.DocumentID, got.DocumentID)
	assert.Equal(t, doc.Text, got.Text)
	assert.Equal(t, doc.ContextID, got.ContextID)
	assert.Equal(t, doc.Tags, got.Tags)
	assert.Equal(t, doc.LastModified, got.LastModified)
	assert.InDelta(t, 1.0, got.Score, 1e-4)
}

func TestQdrant_FilteredSearchAndResidual(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docs := []IndexDocument{
		testDoc("doc:a", 0, "CTX-1", "technical", "alpha", vec(1)),
		testDoc("doc:b", 0, "CTX-1", "technical", "beta", vec(0.8)),
		testDoc("doc:c", 0, "CTX-2", "meeting", "gamma", vec(0.6)),
	}
	_, err := store.Upsert(ctx, docs)
	require.NoError(t, err)

	expr, err := filter.Parse(filter.Spec{"category": "technical", "tags_contains": "shared"})
	require.NoError(t, err)
	results, err := store.Search(ctx, vec(1), expr, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	expr, err = filter.Parse(filter.Spec{"title_endswith": "doc:b"})
	require.NoError(t, err)
	results, err = store.Search(ctx, vec(1), expr, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc:b", results[0].DocumentID)
}

func TestQdrant_DeleteCountFacet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	docs := []IndexDocument{
		testDoc("doc:a", 0, "CTX-1", "technical", "alpha", vec(1)),
		testDoc("doc:a", 1, "CTX-1", "technical", "alpha two", vec(1)),
		testDoc("doc:c", 0, "CTX-2", "meeting", "gamma", vec(0.6)),
	}
	_, err := store.Upsert(ctx, docs)
	require.NoError(t, err)

	facets, err := store.Facet(ctx, FieldContextID, nil, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []FacetCount{{"CTX-1", 2}, {"CTX-2", 1}}, facets)

	expr, err := filter.Parse(filter.Spec{"context_id": "CTX-1"})
	require.NoError(t, err)
	n, err := store.Delete(ctx, expr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	total, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	n, err = store.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQdrant_PlaceholderStoredWithoutVector(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ph := testDoc("doc:p", 0, "CTX-1", "technical", "no vector", make([]float32, integrationDim))
	ph.Placeholder = true
	errs, err := store.Upsert(ctx, []IndexDocument{ph})
	require.NoError(t, err)
	require.NoError(t, errs[0])

	n, err := store.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := store.Search(ctx, vec(1), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQdrant_DimensionValidation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	bad := testDoc("doc:x", 0, "CTX", "x", "short", []float32{1, 2})
	errs, err := store.Upsert(ctx, []IndexDocument{bad})
	require.NoError(t, err)
	assert.True(t, errors.Is(errs[0], ErrDimensionMismatch))

	_, err = store.Search(ctx, []float32{1}, nil, 5)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	other := &QdrantStore{client: store.client, collection: store.collection, dimension: integrationDim * 2}
	assert.True(t, errors.Is(other.EnsureCollection(ctx), ErrDimensionMismatch))
}
