package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultBatchSize keeps each request small enough to stay under
	// tokens-per-minute limits on modest account tiers.
	DefaultBatchSize = 16

	// DefaultBatchDelay is the pause inserted between consecutive batches.
	DefaultBatchDelay = 500 * time.Millisecond
)

// ErrDimensionMismatch is returned when a vector does not have the
// pipeline's configured dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ProviderError reports a failed provider call for a batch.
type ProviderError struct {
	Start, End int // input positions covered by the failed batch
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed for items %d-%d: %v", e.Start, e.End, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Result is the outcome for one input text. When Err is set, Vector is a
// zero vector of the pipeline dimension and should be stored as a placeholder.
type Result struct {
	Vector []float32
	Err    error
}

// Placeholder reports whether the vector was substituted after a failure.
func (r Result) Placeholder() bool { return r.Err != nil }

// Embedder batches texts through a Provider with a fixed delay between batches.
type Embedder struct {
	provider  Provider
	dimension int
	batchSize int
	delay     time.Duration
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets the number of texts per provider call.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between batches. Zero disables it.
func WithBatchDelay(d time.Duration) Option {
	return func(e *Embedder) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithLogger sets the logger for batch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmbedder creates an Embedder producing vectors of the given dimension.
func NewEmbedder(provider Provider, dimension int, opts ...Option) *Embedder {
	e := &Embedder{
		provider:  provider,
		dimension: dimension,
		batchSize: DefaultBatchSize,
		delay:     DefaultBatchDelay,
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the vector size every result has.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedBatch embeds texts and returns one Result per text in input order.
// A failed batch yields zero vectors for all of its items. Cancelling ctx
// stops further provider calls; remaining items get the context error.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		if start > 0 && e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				e.fail(results, start, len(texts), err)
				return results
			}
		}
		if err := ctx.Err(); err != nil {
			e.fail(results, start, len(texts), err)
			return results
		}

		vectors, err := e.provider.Embed(ctx, texts[start:end])
		if err == nil && len(vectors) != end-start {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), end-start)
		}
		if err != nil {
			e.logger.Warn("embedding batch failed, substituting zero vectors",
				"start", start, "end", end, "error", err)
			e.fail(results, start, end, err)
			continue
		}

		for i, v := range vectors {
			if len(v) != e.dimension {
				results[start+i] = Result{
					Vector: make([]float32, e.dimension),
					Err:    fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), e.dimension),
				}
				continue
			}
			results[start+i] = Result{Vector: v}
		}
	}
	return results
}

func (e *Embedder) fail(results []Result, start, end int, err error) {
	perr := &ProviderError{Start: start, End: end, Err: err}
	for i := start; i < end; i++ {
		results[i] = Result{Vector: make([]float32, e.dimension), Err: perr}
	}
}

// EmbedQuery embeds a single query text. Unlike EmbedBatch it returns an
// error instead of a zero vector, since a placeholder query matches nothing.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, &ProviderError{Start: 0, End: 1, Err: err}
	}
	if len(vectors) != 1 {
		return nil, &ProviderError{Start: 0, End: 1, Err: fmt.Errorf("provider returned %d vectors", len(vectors))}
	}
	if len(vectors[0]) != e.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vectors[0]), e.dimension)
	}
	return vectors[0], nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
