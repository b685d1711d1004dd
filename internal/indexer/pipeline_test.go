package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/ctxindex/internal/chunker"
	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/extract"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/metadata"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
	"github.com/mike-a-ellis/ctxindex/internal/tracker"
)

const testDim = 4

type fakeProvider struct {
	fail  bool
	calls int
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)), 0, 0}
	}
	return out, nil
}

type fakeClassifier struct{ category string }

func (f fakeClassifier) Classify(context.Context, string, string) (*metadata.DocumentMetadata, error) {
	return &metadata.DocumentMetadata{Category: f.category, Summary: "summary"}, nil
}

type countingClassifier struct{ calls atomic.Int32 }

func (c *countingClassifier) Classify(context.Context, string, string) (*metadata.DocumentMetadata, error) {
	c.calls.Add(1)
	return &metadata.DocumentMetadata{Category: "planning"}, nil
}

type harness struct {
	root     string
	store    *storage.MemoryStore
	index    *storage.Index
	tracker  *tracker.Store
	provider *fakeProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kw, err := storage.NewBleveStore("")
	require.NoError(t, err)
	store := storage.NewMemoryStore(testDim)
	h := &harness{
		root:     t.TempDir(),
		store:    store,
		index:    storage.NewIndex(store, kw),
		tracker:  tracker.Open(filepath.Join(t.TempDir(), "tracking.json"), nil),
		provider: &fakeProvider{},
	}
	t.Cleanup(func() { h.index.Close() })
	return h
}

func (h *harness) pipeline(backend Backend, classifier Classifier, dim int) *Pipeline {
	if backend == nil {
		backend = h.index
	}
	emb := embedding.NewEmbedder(h.provider, dim, embedding.WithBatchDelay(0))
	return NewPipeline(extract.New(h.root, nil), chunker.New(), emb,
		NewWriter(backend, 0, nil), h.tracker, classifier, nil)
}

func (h *harness) run(t *testing.T, opts Options) *Report {
	t.Helper()
	opts.Root = h.root
	report, err := h.pipeline(nil, nil, testDim).Run(context.Background(), opts)
	require.NoError(t, err)
	return report
}

func (h *harness) count(t *testing.T, spec filter.Spec) int {
	t.Helper()
	expr, err := filter.Parse(spec)
	require.NoError(t, err)
	n, err := h.store.Count(context.Background(), expr)
	require.NoError(t, err)
	return n
}

func writeDoc(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func seed(t *testing.T, root string) {
	writeDoc(t, root, "CTX-1/alpha.md", "# Alpha\n\nAlpha body text about the rollout.")
	writeDoc(t, root, "CTX-1/beta.md", "---\ncategory: meeting\n---\n# Beta\n\nNotes from the sync. #Followup")
	writeDoc(t, root, "CTX-2/gamma.txt", "Gamma plain text notes.")
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)

	first := h.run(t, Options{})
	assert.Equal(t, 3, first.Discovered)
	assert.Equal(t, 3, first.Processed)
	assert.Zero(t, first.Failed)
	assert.Equal(t, first.Chunks, first.Uploaded)
	assert.Equal(t, first.Chunks, h.count(t, nil))
	assert.Equal(t, 3, h.tracker.Stats().Count)

	calls := h.provider.calls
	second := h.run(t, Options{})
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Uploaded)
	assert.Equal(t, calls, h.provider.calls, "no embedding calls for unchanged files")

	forced := h.run(t, Options{Force: true})
	assert.Equal(t, 3, forced.Processed)
	assert.Equal(t, first.Chunks, h.count(t, nil), "re-upload overwrites instead of duplicating")
}

func TestRun_DocumentFields(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	h.run(t, Options{})

	assert.Equal(t, 2, h.count(t, filter.Spec{"context_id": "CTX-1"}))
	assert.Equal(t, 1, h.count(t, filter.Spec{"category": "meeting"}))
	assert.Equal(t, 2, h.count(t, filter.Spec{"category": metadata.DefaultCategory}))
	assert.Equal(t, 1, h.count(t, filter.Spec{"tags_contains": "followup"}))
	assert.Equal(t, 1, h.count(t, filter.Spec{"title": "gamma"}), "title falls back to file name")
}

func TestRun_ModifiedFileIsReindexedAndTrimmed(t *testing.T) {
	h := newHarness(t)
	para := strings.TrimSpace(strings.Repeat("word ", 180))
	path := writeDoc(t, h.root, "CTX-1/long.md", para+"\n\n"+para+"\n\n"+para)

	h.run(t, Options{})
	bySource := filter.Spec{"source_path": path}
	require.Greater(t, h.count(t, bySource), 1)

	writeDoc(t, h.root, "CTX-1/long.md", "Now a short note.")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	report := h.run(t, Options{})
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, h.count(t, bySource), "chunks past the new count are removed")
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)

	report := h.run(t, Options{DryRun: true, Reset: true})

	assert.Equal(t, 3, report.Processed)
	assert.Positive(t, report.Chunks)
	assert.Zero(t, report.Uploaded)
	assert.Zero(t, h.provider.calls)
	assert.Zero(t, h.count(t, nil))
	assert.Zero(t, h.tracker.Stats().Count)
}

func TestRun_ResetContext(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	h.run(t, Options{})

	report := h.run(t, Options{Reset: true, Contexts: []string{"CTX-1"}})

	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 3, h.count(t, nil))
	assert.Equal(t, 3, h.tracker.Stats().Count)
}

func TestRun_ResetAll(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	h.run(t, Options{})

	report := h.run(t, Options{Reset: true})

	assert.Equal(t, 3, report.Deleted)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 3, h.count(t, nil))
}

func TestRun_ProviderFailureStoresPlaceholdersAndRetries(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	h.provider.fail = true

	first := h.run(t, Options{})
	assert.Equal(t, first.Chunks, first.Placeholders)
	assert.Equal(t, first.Chunks, first.Uploaded)
	assert.Equal(t, 1, h.count(t, filter.Spec{"context_id": "CTX-2", "embedding_placeholder": true}))
	assert.Zero(t, h.tracker.Stats().Count, "files with placeholder vectors stay eligible")

	h.provider.fail = false
	second := h.run(t, Options{})
	assert.Equal(t, 3, second.Processed)
	assert.Zero(t, second.Placeholders)
	assert.Zero(t, h.count(t, filter.Spec{"embedding_placeholder": true}))
	assert.Equal(t, 3, h.tracker.Stats().Count)
}

type failingBackend struct{ dim int }

func (f failingBackend) Dimension() int { return f.dim }

func (f failingBackend) Upsert(context.Context, []storage.IndexDocument) ([]error, error) {
	return nil, errors.New("backend down")
}

func (f failingBackend) Delete(context.Context, filter.Expr) (int, error) { return 0, nil }

func TestRun_UploadFailureLeavesFileUnmarked(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)

	p := h.pipeline(failingBackend{dim: testDim}, nil, testDim)
	report, err := p.Run(context.Background(), Options{Root: h.root})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Failed)
	assert.Equal(t, report.Chunks, report.UploadFailed)
	assert.Len(t, report.Failures, 3)
	assert.Zero(t, h.tracker.Stats().Count)
}

func TestRun_DimensionMismatchIsFatal(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)

	_, err := h.pipeline(nil, nil, testDim*2).Run(context.Background(), Options{Root: h.root})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.Zero(t, h.provider.calls)
}

func TestRun_UnreadableFileIsRecorded(t *testing.T) {
	h := newHarness(t)
	writeDoc(t, h.root, "CTX-1/empty.md", "  \n")
	writeDoc(t, h.root, "CTX-1/ok.md", "Fine.")

	report := h.run(t, Options{})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "CTX-1/empty.md", report.Failures[0].Path)
	assert.Contains(t, report.Failures[0].Reason, extract.ErrEmptyContent.Error())
}

func TestRun_ClassifierFillsMissingCategory(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)

	p := h.pipeline(nil, fakeClassifier{category: "planning"}, testDim)
	_, err := p.Run(context.Background(), Options{Root: h.root})
	require.NoError(t, err)

	assert.Equal(t, 2, h.count(t, filter.Spec{"category": "planning"}))
	assert.Equal(t, 1, h.count(t, filter.Spec{"category": "meeting"}), "header category wins")
}

func TestRun_DryRunSkipsClassifier(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	classifier := &countingClassifier{}

	report, err := h.pipeline(nil, classifier, testDim).Run(context.Background(), Options{Root: h.root, DryRun: true})
	require.NoError(t, err)
	assert.Positive(t, report.Processed)
	assert.Zero(t, classifier.calls.Load())

	_, err = h.pipeline(nil, classifier, testDim).Run(context.Background(), Options{Root: h.root})
	require.NoError(t, err)
	assert.Positive(t, classifier.calls.Load())
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.pipeline(nil, nil, testDim).Run(ctx, Options{Root: h.root})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Processed)
}

func TestRemove_DeletesChunksAndTracking(t *testing.T) {
	h := newHarness(t)
	seed(t, h.root)
	h.run(t, Options{})

	path := filepath.Join(h.root, "CTX-1", "alpha.md")
	require.NoError(t, os.Remove(path))

	n, err := h.pipeline(nil, nil, testDim).Remove(context.Background(), path)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Zero(t, h.count(t, filter.Spec{storage.FieldSourcePath: path}))
	assert.Equal(t, 2, h.tracker.Stats().Count)

	report := h.run(t, Options{})
	assert.Equal(t, 2, report.Skipped)
	assert.Zero(t, report.Processed)
}
