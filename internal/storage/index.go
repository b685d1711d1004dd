package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// VectorStore holds chunk vectors plus their fields.
type VectorStore interface {
	Dimension() int
	// Upsert writes docs and returns one error slot per doc. A non-nil
	// second return means the whole call failed.
	Upsert(ctx context.Context, docs []IndexDocument) ([]error, error)
	// Delete removes chunks matching expr; a nil expr removes everything.
	Delete(ctx context.Context, expr filter.Expr) (int, error)
	Search(ctx context.Context, vector []float32, expr filter.Expr, topK int) ([]Record, error)
	Facet(ctx context.Context, field string, expr filter.Expr, limit int) ([]FacetCount, error)
	Count(ctx context.Context, expr filter.Expr) (int, error)
	Health(ctx context.Context) error
	Close() error
}

// KeywordStore is the lexical side of the index.
type KeywordStore interface {
	Upsert(ctx context.Context, docs []IndexDocument) ([]error, error)
	Delete(ctx context.Context, expr filter.Expr) (int, error)
	Search(ctx context.Context, query string, expr filter.Expr, topK int) ([]Record, error)
	Close() error
}

// SearchRequest is one query against the Index.
type SearchRequest struct {
	Mode   Mode
	Query  string
	Vector []float32 // required for vector and hybrid modes
	Filter filter.Expr
	TopK   int
}

// Index combines a vector store and a keyword store behind one backend.
// Hybrid search fuses their rankings.
type Index struct {
	vectors        VectorStore
	keywords       KeywordStore
	keywordWeight  float64
	semanticWeight float64
	logger         *slog.Logger
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithFusionWeights sets the hybrid weights for keyword and semantic scores.
func WithFusionWeights(keyword, semantic float64) IndexOption {
	return func(i *Index) {
		if keyword >= 0 && semantic >= 0 && keyword+semantic > 0 {
			i.keywordWeight = keyword
			i.semanticWeight = semantic
		}
	}
}

// WithLogger sets the logger used for store-level warnings.
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewIndex creates an Index. keywords may be nil, in which case keyword
// and hybrid modes return ErrModeUnavailable.
func NewIndex(vectors VectorStore, keywords KeywordStore, opts ...IndexOption) *Index {
	idx := &Index{
		vectors:        vectors,
		keywords:       keywords,
		keywordWeight:  0.3,
		semanticWeight: 0.7,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Dimension is the vector size the backend was configured with.
func (i *Index) Dimension() int {
	return i.vectors.Dimension()
}

// Upsert writes docs to the vector store, then mirrors the ones that
// succeeded into the keyword store. The returned slice has one entry per doc.
func (i *Index) Upsert(ctx context.Context, docs []IndexDocument) ([]error, error) {
	errs, err := i.vectors.Upsert(ctx, docs)
	if err != nil {
		return nil, err
	}
	if i.keywords == nil {
		return errs, nil
	}

	var (
		ok  []IndexDocument
		pos []int
	)
	for n, e := range errs {
		if e == nil {
			ok = append(ok, docs[n])
			pos = append(pos, n)
		}
	}
	if len(ok) == 0 {
		return errs, nil
	}
	kwErrs, err := i.keywords.Upsert(ctx, ok)
	if err != nil {
		for _, n := range pos {
			errs[n] = fmt.Errorf("%w: keyword index: %v", ErrWrite, err)
		}
		return errs, nil
	}
	for k, e := range kwErrs {
		if e != nil {
			errs[pos[k]] = e
		}
	}
	return errs, nil
}

// Delete removes matching chunks from both stores and returns the number
// removed from the vector store.
func (i *Index) Delete(ctx context.Context, expr filter.Expr) (int, error) {
	n, err := i.vectors.Delete(ctx, expr)
	if err != nil {
		return 0, err
	}
	if i.keywords != nil {
		if _, err := i.keywords.Delete(ctx, expr); err != nil {
			return n, fmt.Errorf("keyword index delete: %w", err)
		}
	}
	return n, nil
}

// Search runs req in its mode. Results are ordered by descending score.
func (i *Index) Search(ctx context.Context, req SearchRequest) ([]Record, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	switch req.Mode {
	case ModeKeyword:
		if i.keywords == nil {
			return nil, fmt.Errorf("%w: %s", ErrModeUnavailable, req.Mode)
		}
		return i.keywords.Search(ctx, req.Query, req.Filter, topK)

	case ModeVector:
		if err := i.checkVector(req.Vector); err != nil {
			return nil, err
		}
		return i.vectors.Search(ctx, req.Vector, req.Filter, topK)

	case ModeHybrid:
		if i.keywords == nil {
			return nil, fmt.Errorf("%w: %s", ErrModeUnavailable, req.Mode)
		}
		if err := i.checkVector(req.Vector); err != nil {
			return nil, err
		}
		candidates := topK * 3
		if candidates < 20 {
			candidates = 20
		}
		semantic, err := i.vectors.Search(ctx, req.Vector, req.Filter, candidates)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		lexical, err := i.keywords.Search(ctx, req.Query, req.Filter, candidates)
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		fused := fuse(lexical, semantic, i.keywordWeight, i.semanticWeight)
		if len(fused) > topK {
			fused = fused[:topK]
		}
		return fused, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
}

func (i *Index) checkVector(v []float32) error {
	if len(v) == 0 {
		return errors.New("query vector is required")
	}
	if len(v) != i.vectors.Dimension() {
		return fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(v), i.vectors.Dimension())
	}
	return nil
}

// Facet counts distinct values of field among chunks matching expr.
func (i *Index) Facet(ctx context.Context, field string, expr filter.Expr, limit int) ([]FacetCount, error) {
	return i.vectors.Facet(ctx, field, expr, limit)
}

// Count returns the number of chunks matching expr.
func (i *Index) Count(ctx context.Context, expr filter.Expr) (int, error) {
	return i.vectors.Count(ctx, expr)
}

// Health reports whether the vector backend is reachable.
func (i *Index) Health(ctx context.Context) error {
	return i.vectors.Health(ctx)
}

// Close closes both stores.
func (i *Index) Close() error {
	var errs []error
	if err := i.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if i.keywords != nil {
		if err := i.keywords.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fuse merges keyword and semantic hits. Keyword scores are normalized by
// their maximum; semantic scores are cosine similarities clamped to [0,1].
func fuse(lexical, semantic []Record, keywordWeight, semanticWeight float64) []Record {
	maxKeyword := 0.0
	for _, r := range lexical {
		if r.Score > maxKeyword {
			maxKeyword = r.Score
		}
	}

	merged := make(map[string]*Record, len(lexical)+len(semantic))
	for _, r := range semantic {
		rec := r
		s := clamp01(r.Score)
		rec.Score = s * semanticWeight
		merged[r.ID] = &rec
	}
	for _, r := range lexical {
		k := 0.0
		if maxKeyword > 0 {
			k = r.Score / maxKeyword
		}
		if rec, ok := merged[r.ID]; ok {
			rec.Score += k * keywordWeight
			continue
		}
		rec := r
		rec.Score = k * keywordWeight
		merged[r.ID] = &rec
	}

	out := make([]Record, 0, len(merged))
	for _, r := range merged {
		out = append(out, *r)
	}
	sortRecords(out)
	return out
}

// sortRecords orders by descending score, then ID for stable output.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(a, b int) bool {
		if recs[a].Score != recs[b].Score {
			return recs[a].Score > recs[b].Score
		}
		return recs[a].ID < recs[b].ID
	})
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// overfetch is the candidate count used when part of a filter must be
// applied after the backend returns.
func overfetch(topK int) int {
	n := topK * 10
	if n < 100 {
		n = 100
	}
	return n
}

// applyResidual drops records that fail expr and truncates to topK.
func applyResidual(recs []Record, expr filter.Expr, topK int) []Record {
	if expr != nil {
		kept := recs[:0]
		for _, r := range recs {
			if expr.Match(r.Fields()) {
				kept = append(kept, r)
			}
		}
		recs = kept
	}
	if len(recs) > topK {
		recs = recs[:topK]
	}
	return recs
}
