package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
)

// MemoryStore is an in-process VectorStore using brute-force cosine
// similarity. It backs tests and runs without a Qdrant server.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]IndexDocument
}

// NewMemoryStore creates an empty store for vectors of the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension, docs: make(map[string]IndexDocument)}
}

func (s *MemoryStore) Dimension() int { return s.dimension }

func (s *MemoryStore) Upsert(_ context.Context, docs []IndexDocument) ([]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, len(docs))
	for i, d := range docs {
		if !d.Placeholder && len(d.Vector) != s.dimension {
			errs[i] = fmt.Errorf("%w: %s: %w: has %d dimensions, expected %d",
				ErrWrite, d.ID, ErrDimensionMismatch, len(d.Vector), s.dimension)
			continue
		}
		d.Vector = append([]float32(nil), d.Vector...)
		s.docs[d.ID] = d
	}
	return errs, nil
}

func (s *MemoryStore) Delete(_ context.Context, expr filter.Expr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, d := range s.docs {
		if expr == nil || expr.Match(d.Fields()) {
			delete(s.docs, id)
			n++
		}
	}
	return n, nil
}

// Search skips placeholder vectors; they carry no similarity signal.
func (s *MemoryStore) Search(_ context.Context, vector []float32, expr filter.Expr, topK int) ([]Record, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, d := range s.docs {
		if d.Placeholder {
			continue
		}
		if expr != nil && !expr.Match(d.Fields()) {
			continue
		}
		out = append(out, d.Record(cosine(d.Vector, vector)))
	}
	sortRecords(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *MemoryStore) Facet(_ context.Context, field string, expr filter.Expr, limit int) ([]FacetCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, d := range s.docs {
		fields := d.Fields()
		if expr != nil && !expr.Match(fields) {
			continue
		}
		if field == FieldTags {
			for _, t := range d.Tags {
				counts[t]++
			}
			continue
		}
		if v := fmt.Sprint(fields[field]); v != "" && fields[field] != nil {
			counts[v]++
		}
	}
	return facetList(counts, limit), nil
}

func (s *MemoryStore) Count(_ context.Context, expr filter.Expr) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if expr == nil {
		return len(s.docs), nil
	}
	n := 0
	for _, d := range s.docs {
		if expr.Match(d.Fields()) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// facetList orders facets by descending count, then value.
func facetList(counts map[string]int, limit int) []FacetCount {
	out := make([]FacetCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, FacetCount{Value: v, Count: c})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Value < out[b].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
