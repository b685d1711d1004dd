package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/ctxindex/internal/chunker"
	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/extract"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/metadata"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// DefaultUploadBatchSize is the number of documents per backend upsert.
const DefaultUploadBatchSize = 64

// Backend is the write side of the search index.
type Backend interface {
	Dimension() int
	Upsert(ctx context.Context, docs []storage.IndexDocument) ([]error, error)
	Delete(ctx context.Context, expr filter.Expr) (int, error)
}

// UploadReport counts the outcome of an Upload.
type UploadReport struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// Writer maps chunks into backend documents and uploads them in batches.
type Writer struct {
	backend   Backend
	batchSize int
	logger    *slog.Logger
}

// NewWriter creates a Writer. batchSize <= 0 uses DefaultUploadBatchSize.
func NewWriter(backend Backend, batchSize int, logger *slog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultUploadBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{backend: backend, batchSize: batchSize, logger: logger}
}

// Dimension is the vector size the backend accepts.
func (w *Writer) Dimension() int {
	return w.backend.Dimension()
}

// Build creates one IndexDocument per chunk. results must be aligned with
// chunks; a missing or failed result produces a placeholder document.
func (w *Writer) Build(doc *extract.Document, chunks []chunker.Chunk, results []embedding.Result) []storage.IndexDocument {
	category := doc.Category
	if category == "" {
		category = metadata.DefaultCategory
	}

	out := make([]storage.IndexDocument, len(chunks))
	for i, c := range chunks {
		d := storage.IndexDocument{
			ID:           storage.ChunkID(doc.ID, c.Index),
			DocumentID:   doc.ID,
			Text:         c.Text,
			ContextID:    doc.ContextID,
			Title:        doc.Title,
			Tags:         doc.Tags,
			Category:     category,
			SourcePath:   doc.SourcePath,
			FileName:     doc.FileName,
			Extension:    doc.Extension,
			LastModified: doc.LastModified,
			ChunkIndex:   c.Index,
			ChunkCount:   len(chunks),
		}
		if i < len(results) && results[i].Err == nil {
			d.Vector = results[i].Vector
		} else {
			d.Vector = make([]float32, w.backend.Dimension())
			d.Placeholder = true
		}
		out[i] = d
	}
	return out
}

// Upload writes docs in batches. Documents with a wrong-length vector are
// rejected before upload. Per-document failures are counted and the rest
// of the batch continues; a failed batch call fails only that batch.
func (w *Writer) Upload(ctx context.Context, docs []storage.IndexDocument) UploadReport {
	var report UploadReport
	dim := w.backend.Dimension()

	valid := make([]storage.IndexDocument, 0, len(docs))
	for _, d := range docs {
		if !d.Placeholder && len(d.Vector) != dim {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w: has %d dimensions, expected %d",
				d.ID, storage.ErrDimensionMismatch, len(d.Vector), dim))
			continue
		}
		valid = append(valid, d)
	}

	for start := 0; start < len(valid); start += w.batchSize {
		end := min(start+w.batchSize, len(valid))
		batch := valid[start:end]

		errs, err := w.backend.Upsert(ctx, batch)
		if err != nil {
			w.logger.Warn("upload batch failed", "start", start, "size", len(batch), "error", err)
			report.Failed += len(batch)
			report.Errors = append(report.Errors, fmt.Errorf("batch %d-%d: %w", start, end, err))
			continue
		}
		for i, e := range errs {
			if e != nil {
				report.Failed++
				report.Errors = append(report.Errors, e)
				w.logger.Debug("document upload failed", "id", batch[i].ID, "error", e)
				continue
			}
			report.Succeeded++
		}
	}
	return report
}

// DeleteByFilter removes every document matching spec. An empty spec is
// rejected; use DeleteAll to clear the index.
func (w *Writer) DeleteByFilter(ctx context.Context, spec filter.Spec) (int, error) {
	expr, err := filter.Parse(spec)
	if err != nil {
		return 0, err
	}
	if expr == nil {
		return 0, fmt.Errorf("%w: empty delete filter", filter.ErrInvalidValue)
	}
	n, err := w.backend.Delete(ctx, expr)
	if err != nil {
		return 0, fmt.Errorf("delete by filter %s: %w", expr, err)
	}
	return n, nil
}

// DeleteAll removes every document from the index.
func (w *Writer) DeleteAll(ctx context.Context) (int, error) {
	n, err := w.backend.Delete(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return n, nil
}
