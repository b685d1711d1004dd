package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/mike-a-ellis/ctxindex/internal/chunker"
	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/extract"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/metadata"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
	"github.com/mike-a-ellis/ctxindex/internal/tracker"
)

// ErrConfiguration is returned when the pipeline cannot run with the
// components it was given.
var ErrConfiguration = errors.New("configuration error")

// Classifier infers a category and summary for a document.
type Classifier interface {
	Classify(ctx context.Context, title, content string) (*metadata.DocumentMetadata, error)
}

// Options control a single Run.
type Options struct {
	Root     string
	Contexts []string // limit to these context ids; empty means all
	DryRun   bool     // extract and chunk only
	Force    bool     // ignore the change tracker
	Reset    bool     // delete indexed documents and tracking first
}

// Report contains statistics about a Run.
type Report struct {
	Discovered   int
	Processed    int
	Skipped      int
	Failed       int
	Chunks       int
	Uploaded     int
	UploadFailed int
	Placeholders int
	Deleted      int
	Warnings     []string
	Failures     []FailedDoc
	Duration     time.Duration
}

// FailedDoc represents a document that failed to index.
type FailedDoc struct {
	Path   string
	Reason string
}

// Pipeline orchestrates ingestion from the content root into the index.
type Pipeline struct {
	extractor  *extract.Extractor
	chunker    *chunker.Chunker
	embedder   *embedding.Embedder
	writer     *Writer
	tracker    *tracker.Store
	classifier Classifier
	logger     *slog.Logger
}

// NewPipeline creates a new indexing pipeline with the given components.
// classifier may be nil.
func NewPipeline(
	extractor *extract.Extractor,
	chunker *chunker.Chunker,
	embedder *embedding.Embedder,
	writer *Writer,
	tracker *tracker.Store,
	classifier Classifier,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		writer:     writer,
		tracker:    tracker,
		classifier: classifier,
		logger:     logger,
	}
}

// Run processes every new or changed file under opts.Root. Per-file
// failures are recorded in the report; the returned error is reserved for
// problems that stop the whole run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if !opts.DryRun && p.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider", ErrConfiguration)
	}
	if !opts.DryRun && p.embedder.Dimension() != p.writer.Dimension() {
		return nil, fmt.Errorf("%w: embedding dimension %d does not match index dimension %d: %w",
			ErrConfiguration, p.embedder.Dimension(), p.writer.Dimension(), storage.ErrDimensionMismatch)
	}

	if opts.Reset && !opts.DryRun {
		n, err := p.reset(ctx, opts.Contexts)
		if err != nil {
			return nil, err
		}
		report.Deleted = n
	}

	files, err := Discover(opts.Root, opts.Contexts)
	if err != nil {
		return nil, err
	}
	report.Discovered = len(files)
	p.logger.Info("Starting ingestion", "root", opts.Root, "files", len(files), "dry_run", opts.DryRun)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			p.saveTracker(report, opts.DryRun)
			return report, err
		}
		if !opts.Force && p.tracker.IsProcessed(f.Path) {
			report.Skipped++
			continue
		}
		if err := p.processFile(ctx, f, opts.DryRun, report); err != nil {
			p.logger.Warn("Failed to process document", "path", f.Path, "error", err)
			report.Failed++
			report.Failures = append(report.Failures, FailedDoc{Path: f.RelPath, Reason: err.Error()})
			continue
		}
		report.Processed++
	}

	p.saveTracker(report, opts.DryRun)
	report.Duration = time.Since(start)
	p.logger.Info("Ingestion complete",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"chunks", report.Chunks,
		"uploaded", report.Uploaded,
		"duration", report.Duration,
	)
	return report, nil
}

// processFile handles the full pipeline for a single document. The file is
// marked processed only when every chunk uploaded with a real vector.
func (p *Pipeline) processFile(ctx context.Context, f SourceFile, dryRun bool, report *Report) error {
	doc, err := p.extractor.Read(f.Path)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	for _, w := range doc.Warnings {
		report.Warnings = append(report.Warnings, w.String())
	}

	chunks := p.chunker.Chunk(doc.Body)
	report.Chunks += len(chunks)
	p.logger.Debug("Chunked document", "path", f.RelPath, "chunks", len(chunks))
	if dryRun {
		return nil
	}

	p.classify(ctx, doc)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embedText(doc.Title, c.Text)
	}
	results := p.embedder.EmbedBatch(ctx, texts)

	docs := p.writer.Build(doc, chunks, results)
	placeholders := 0
	for _, d := range docs {
		if d.Placeholder {
			placeholders++
		}
	}
	report.Placeholders += placeholders

	up := p.writer.Upload(ctx, docs)
	report.Uploaded += up.Succeeded
	report.UploadFailed += up.Failed
	if up.Failed > 0 {
		return fmt.Errorf("upload: %d of %d chunks failed: %w", up.Failed, len(docs), errors.Join(up.Errors...))
	}

	// Chunk ids are stable per ordinal, so only ordinals past the new
	// count can be left over from a previous version of the file.
	if _, err := p.writer.DeleteByFilter(ctx, filter.Spec{
		storage.FieldSourcePath: doc.SourcePath,
		storage.FieldChunkIndex: map[string]any{"gte": len(chunks)},
	}); err != nil {
		return fmt.Errorf("remove stale chunks: %w", err)
	}

	if placeholders > 0 {
		p.logger.Warn("Indexed with placeholder vectors, will retry next run",
			"path", f.RelPath, "placeholders", placeholders)
		return nil
	}

	p.tracker.MarkProcessed(f.Path)
	if err := p.tracker.Save(); err != nil {
		p.logger.Warn("Failed to save tracking store", "error", err)
	}
	p.logger.Info("Indexed document", "path", f.RelPath, "chunks", len(chunks))
	return nil
}

func (p *Pipeline) classify(ctx context.Context, doc *extract.Document) {
	if doc.Category != "" || p.classifier == nil {
		return
	}
	md, err := p.classifier.Classify(ctx, doc.Title, doc.Body)
	if err != nil {
		p.logger.Warn("Metadata generation failed, using default category", "path", doc.RelPath, "error", err)
		return
	}
	doc.Category = md.Category
	if doc.Summary == "" {
		doc.Summary = md.Summary
	}
}

// reset deletes indexed documents and tracking for contexts, or for
// everything when contexts is empty.
func (p *Pipeline) reset(ctx context.Context, contexts []string) (int, error) {
	if len(contexts) == 0 {
		n, err := p.writer.DeleteAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("reset: %w", err)
		}
		if err := p.tracker.Clear(); err != nil {
			return n, fmt.Errorf("reset tracking: %w", err)
		}
		p.logger.Info("Reset index", "deleted", n)
		return n, nil
	}

	values := make([]any, len(contexts))
	for i, c := range contexts {
		values[i] = c
	}
	n, err := p.writer.DeleteByFilter(ctx, filter.Spec{storage.FieldContextID: values})
	if err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}
	forgotten := p.tracker.Forget(func(path string) bool {
		return slices.Contains(contexts, filepath.Base(filepath.Dir(path)))
	})
	if err := p.tracker.Save(); err != nil {
		return n, fmt.Errorf("reset tracking: %w", err)
	}
	p.logger.Info("Reset contexts", "contexts", contexts, "deleted", n, "untracked", forgotten)
	return n, nil
}

// Remove deletes the chunks of a file that no longer exists and drops it
// from tracking.
func (p *Pipeline) Remove(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	n, err := p.writer.DeleteByFilter(ctx, filter.Spec{storage.FieldSourcePath: abs})
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", abs, err)
	}
	p.tracker.Forget(func(tracked string) bool { return tracked == abs })
	if err := p.tracker.Save(); err != nil {
		return n, fmt.Errorf("remove tracking: %w", err)
	}
	p.logger.Info("Removed document", "path", abs, "chunks", n)
	return n, nil
}

func (p *Pipeline) saveTracker(report *Report, dryRun bool) {
	if dryRun {
		return
	}
	if err := p.tracker.Save(); err != nil {
		p.logger.Warn("Failed to save tracking store", "error", err)
		report.Warnings = append(report.Warnings, "tracking store not saved: "+err.Error())
	}
}

// embedText prefixes the chunk with its document title so the vector
// carries context the chunk text alone may lack.
func embedText(title, text string) string {
	if title == "" {
		return text
	}
	return title + "\n\n" + text
}
