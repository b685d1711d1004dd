// Package query runs searches against the index on behalf of callers.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/ctxindex/internal/embedding"
	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

const (
	// DefaultTopK is used when a request does not set TopK.
	DefaultTopK = 10
	// MaxTopK caps TopK.
	MaxTopK = 50
	// facetLimit bounds how many distinct values a listing returns.
	facetLimit = 1000
)

// QueryError wraps a failure while answering a query.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Backend is the read side of the search index.
type Backend interface {
	Dimension() int
	Search(ctx context.Context, req storage.SearchRequest) ([]storage.Record, error)
	Facet(ctx context.Context, field string, expr filter.Expr, limit int) ([]storage.FacetCount, error)
	Count(ctx context.Context, expr filter.Expr) (int, error)
	Health(ctx context.Context) error
}

// Embedder turns a query into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Request is one search.
type Request struct {
	Query    string
	Filter   filter.Spec
	Mode     storage.Mode // empty means hybrid
	TopK     int
	MinScore float64
	// DistinctDocuments keeps only the best chunk of each document.
	DistinctDocuments bool
}

// Executor answers searches and index listings.
type Executor struct {
	backend  Backend
	embedder Embedder
	logger   *slog.Logger
}

// NewExecutor creates an Executor. embedder may be nil, which leaves only
// keyword mode available.
func NewExecutor(backend Backend, embedder Embedder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{backend: backend, embedder: embedder, logger: logger}
}

// Search runs req and returns records ordered by descending score. The
// filter is built the same way for every mode.
func (e *Executor) Search(ctx context.Context, req Request) ([]storage.Record, error) {
	mode, err := storage.ParseMode(string(req.Mode))
	if err != nil {
		return nil, &QueryError{Op: "mode", Err: err}
	}
	expr, err := filter.Parse(req.Filter)
	if err != nil {
		return nil, &QueryError{Op: "filter", Err: err}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, MaxTopK)
	fetch := topK
	if req.DistinctDocuments {
		// Several chunks per document can crowd the top results.
		fetch = topK * 3
	}

	sr := storage.SearchRequest{Mode: mode, Query: req.Query, Filter: expr, TopK: fetch}
	if mode != storage.ModeKeyword {
		vec, err := e.embedQuery(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		sr.Vector = vec
	}

	records, err := e.backend.Search(ctx, sr)
	if err != nil {
		return nil, &QueryError{Op: "search", Err: err}
	}
	e.logger.Debug("search", "mode", mode, "filter", fmt.Sprint(expr), "hits", len(records))

	return trim(records, req.MinScore, req.DistinctDocuments, topK), nil
}

func (e *Executor) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, &QueryError{Op: "embed", Err: storage.ErrModeUnavailable}
	}
	if e.embedder.Dimension() != e.backend.Dimension() {
		return nil, &QueryError{Op: "embed", Err: fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			storage.ErrDimensionMismatch, e.embedder.Dimension(), e.backend.Dimension())}
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		if errors.Is(err, embedding.ErrDimensionMismatch) {
			err = fmt.Errorf("%w: %w", storage.ErrDimensionMismatch, err)
		}
		return nil, &QueryError{Op: "embed", Err: err}
	}
	return vec, nil
}

func trim(records []storage.Record, minScore float64, distinct bool, topK int) []storage.Record {
	out := make([]storage.Record, 0, min(len(records), topK))
	seen := make(map[string]bool)
	for _, r := range records {
		if len(out) == topK {
			break
		}
		if minScore > 0 && r.Score < minScore {
			continue
		}
		if distinct {
			if seen[r.DocumentID] {
				continue
			}
			seen[r.DocumentID] = true
		}
		out = append(out, r)
	}
	return out
}
