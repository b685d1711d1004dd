package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ctxindex/internal/chunker"
	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/extract"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// recordingBackend accepts every document except those whose ids are in reject.
type recordingBackend struct {
	batches  [][]storage.IndexDocument
	reject   map[string]bool
	failCall int // 1-based Upsert call that fails as a whole
	deleted  []filter.Expr
}

func (r *recordingBackend) Dimension() int { return testDim }

func (r *recordingBackend) Upsert(_ context.Context, docs []storage.IndexDocument) ([]error, error) {
	r.batches = append(r.batches, docs)
	if len(r.batches) == r.failCall {
		return nil, errors.New("batch rejected")
	}
	errs := make([]error, len(docs))
	for i, d := range docs {
		if r.reject[d.ID] {
			errs[i] = storage.ErrWrite
		}
	}
	return errs, nil
}

func (r *recordingBackend) Delete(_ context.Context, expr filter.Expr) (int, error) {
	r.deleted = append(r.deleted, expr)
	return 7, nil
}

func testDocument() *extract.Document {
	return &extract.Document{
		ID:           "doc:abc",
		ContextID:    "CTX-1",
		Title:        "Design",
		Tags:         []string{"ctx-1", "design"},
		SourcePath:   "/content/CTX-1/design.md",
		FileName:     "design.md",
		Extension:    ".md",
		LastModified: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestWriter_Build(t *testing.T) {
	w := NewWriter(&recordingBackend{}, 0, nil)
	chunks := []chunker.Chunk{{Index: 0, Text: "one"}, {Index: 1, Text: "two"}, {Index: 2, Text: "three"}}
	results := []embedding.Result{
		{Vector: []float32{1, 0, 0, 0}},
		{Vector: make([]float32, testDim), Err: errors.New("failed")},
	}

	docs := w.Build(testDocument(), chunks, results)

	require.Len(t, docs, 3)
	for i, d := range docs {
		assert.Equal(t, storage.ChunkID("doc:abc", i), d.ID)
		assert.Equal(t, "doc:abc", d.DocumentID)
		assert.Equal(t, chunks[i].Text, d.Text)
		assert.Equal(t, "CTX-1", d.ContextID)
		assert.Equal(t, "general", d.Category)
		assert.Equal(t, 3, d.ChunkCount)
		assert.Equal(t, i, d.ChunkIndex)
		assert.Len(t, d.Vector, testDim)
	}
	assert.False(t, docs[0].Placeholder)
	assert.True(t, docs[1].Placeholder)
	assert.True(t, docs[2].Placeholder, "missing result becomes a placeholder")
}

func TestWriter_UploadBatchesAndCountsFailures(t *testing.T) {
	backend := &recordingBackend{reject: map[string]bool{storage.ChunkID("doc:abc", 1): true}}
	w := NewWriter(backend, 2, nil)

	chunks := make([]chunker.Chunk, 5)
	results := make([]embedding.Result, 5)
	for i := range chunks {
		chunks[i] = chunker.Chunk{Index: i, Text: "t"}
		results[i] = embedding.Result{Vector: []float32{1, 1, 1, 1}}
	}
	docs := w.Build(testDocument(), chunks, results)
	docs[3].Vector = []float32{1, 2}

	report := w.Upload(context.Background(), docs)

	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Errors, 2)
	assert.ErrorIs(t, report.Errors[0], storage.ErrDimensionMismatch)
	assert.ErrorIs(t, report.Errors[1], storage.ErrWrite)
	require.Len(t, backend.batches, 2)
	assert.Len(t, backend.batches[0], 2)
	assert.Len(t, backend.batches[1], 2)
}

func TestWriter_UploadBatchFailureIsolated(t *testing.T) {
	backend := &recordingBackend{failCall: 1}
	w := NewWriter(backend, 2, nil)

	docs := make([]storage.IndexDocument, 3)
	for i := range docs {
		docs[i] = storage.IndexDocument{ID: storage.ChunkID("doc:x", i), Vector: []float32{1, 1, 1, 1}}
	}

	report := w.Upload(context.Background(), docs)

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 1)
}

func TestWriter_Delete(t *testing.T) {
	backend := &recordingBackend{}
	w := NewWriter(backend, 0, nil)

	n, err := w.DeleteByFilter(context.Background(), filter.Spec{"context_id": []any{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.Len(t, backend.deleted, 1)
	assert.Equal(t, "(context_id eq 'A' or context_id eq 'B')", backend.deleted[0].String())

	_, err = w.DeleteByFilter(context.Background(), filter.Spec{})
	assert.ErrorIs(t, err, filter.ErrInvalidValue)

	_, err = w.DeleteByFilter(context.Background(), filter.Spec{"bad field": "x"})
	assert.ErrorIs(t, err, filter.ErrInvalidField)

	n, err = w.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Nil(t, backend.deleted[1])
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeDoc(t, root, "B/two.md", "x")
	writeDoc(t, root, "A/one.txt", "x")
	writeDoc(t, root, "A/image.png", "x")
	writeDoc(t, root, ".git/HEAD.md", "x")
	writeDoc(t, root, "A/.hidden.md", "x")

	files, err := Discover(root, nil)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "A/one.txt", files[0].RelPath)
	assert.Equal(t, "A", files[0].ContextID())
	assert.Equal(t, "B/two.md", files[1].RelPath)
	assert.EqualValues(t, 1, files[1].Size)

	files, err = Discover(root, []string{"B"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "B", files[0].ContextID())

	_, err = Discover(filepath.Join(root, "missing"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
