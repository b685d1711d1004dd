package query

import (
	"context"
	"errors"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// ErrContextNotFound is returned when a context has no indexed chunks.
var ErrContextNotFound = errors.New("context not found")

// ContextInfo is one context id and its chunk count.
type ContextInfo struct {
	ID     string `json:"id"`
	Chunks int    `json:"chunks"`
}

// ContextSummary describes what is indexed for one context.
type ContextSummary struct {
	ID         string               `json:"id"`
	Chunks     int                  `json:"chunks"`
	Documents  int                  `json:"documents"`
	Titles     []string             `json:"titles"`
	Categories []storage.FacetCount `json:"categories"`
	Tags       []storage.FacetCount `json:"tags"`
}

// Status is a snapshot of the index.
type Status struct {
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
	Dimension    int    `json:"dimension"`
	TotalChunks  int    `json:"total_chunks"`
	Placeholders int    `json:"placeholders"`
	Contexts     int    `json:"contexts"`
}

// Contexts lists every context id with its chunk count, largest first.
func (e *Executor) Contexts(ctx context.Context) ([]ContextInfo, error) {
	facets, err := e.backend.Facet(ctx, storage.FieldContextID, nil, facetLimit)
	if err != nil {
		return nil, &QueryError{Op: "contexts", Err: err}
	}
	out := make([]ContextInfo, len(facets))
	for i, f := range facets {
		out[i] = ContextInfo{ID: f.Value, Chunks: f.Count}
	}
	return out, nil
}

// ContextSummary returns counts, titles, categories, and tags for id.
func (e *Executor) ContextSummary(ctx context.Context, id string) (*ContextSummary, error) {
	expr := filter.Eq{Field: storage.FieldContextID, Value: id}

	chunks, err := e.backend.Count(ctx, expr)
	if err != nil {
		return nil, &QueryError{Op: "context summary", Err: err}
	}
	if chunks == 0 {
		return nil, &QueryError{Op: "context summary", Err: ErrContextNotFound}
	}

	summary := &ContextSummary{ID: id, Chunks: chunks}

	docs, err := e.backend.Facet(ctx, storage.FieldDocumentID, expr, facetLimit)
	if err != nil {
		return nil, &QueryError{Op: "context summary", Err: err}
	}
	summary.Documents = len(docs)

	titles, err := e.backend.Facet(ctx, storage.FieldTitle, expr, facetLimit)
	if err != nil {
		return nil, &QueryError{Op: "context summary", Err: err}
	}
	summary.Titles = make([]string, len(titles))
	for i, t := range titles {
		summary.Titles[i] = t.Value
	}

	if summary.Categories, err = e.backend.Facet(ctx, storage.FieldCategory, expr, 20); err != nil {
		return nil, &QueryError{Op: "context summary", Err: err}
	}
	if summary.Tags, err = e.backend.Facet(ctx, storage.FieldTags, expr, 50); err != nil {
		return nil, &QueryError{Op: "context summary", Err: err}
	}
	return summary, nil
}

// Status reports backend health and index counts. An unreachable backend
// is reported in the result rather than as an error.
func (e *Executor) Status(ctx context.Context) (*Status, error) {
	st := &Status{Dimension: e.backend.Dimension()}
	if err := e.backend.Health(ctx); err != nil {
		st.Error = err.Error()
		return st, nil
	}
	st.Healthy = true

	var err error
	if st.TotalChunks, err = e.backend.Count(ctx, nil); err != nil {
		return nil, &QueryError{Op: "status", Err: err}
	}
	placeholder := filter.Eq{Field: storage.FieldPlaceholder, Value: true}
	if st.Placeholders, err = e.backend.Count(ctx, placeholder); err != nil {
		return nil, &QueryError{Op: "status", Err: err}
	}
	contexts, err := e.Contexts(ctx)
	if err != nil {
		return nil, err
	}
	st.Contexts = len(contexts)
	return st, nil
}
