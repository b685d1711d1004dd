package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns vectors whose first element encodes the text length.
type fakeProvider struct {
	dim    int
	calls  [][]string
	failOn map[int]error // call number -> error
	short  bool          // return one vector too few
	badDim int           // return this dimension instead
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	call := len(f.calls)
	f.calls = append(f.calls, texts)
	if err := f.failOn[call]; err != nil {
		return nil, err
	}
	n := len(texts)
	if f.short {
		n--
	}
	dim := f.dim
	if f.badDim > 0 {
		dim = f.badDim
	}
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

func newTestEmbedder(p Provider, opts ...Option) (*Embedder, *[]time.Duration) {
	e := NewEmbedder(p, 4, opts...)
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(make([]byte, i+1))
	}
	return out
}

func TestEmbedBatch_BatchesAndDelays(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e, slept := newTestEmbedder(p, WithBatchSize(3), WithBatchDelay(250*time.Millisecond))

	results := e.EmbedBatch(context.Background(), texts(7))

	require.Len(t, results, 7)
	require.Len(t, p.calls, 3)
	assert.Len(t, p.calls[0], 3)
	assert.Len(t, p.calls[2], 1)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, *slept)

	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, float32(i+1), r.Vector[0], "result %d out of order", i)
	}
}

func TestEmbedBatch_FailedBatchKeepsAlignment(t *testing.T) {
	providerErr := errors.New("quota exceeded")
	p := &fakeProvider{dim: 4, failOn: map[int]error{1: providerErr}}
	e, _ := newTestEmbedder(p, WithBatchSize(2))

	results := e.EmbedBatch(context.Background(), texts(5))

	require.Len(t, results, 5)
	for _, i := range []int{0, 1, 4} {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, float32(i+1), results[i].Vector[0])
	}
	for _, i := range []int{2, 3} {
		assert.True(t, results[i].Placeholder())
		assert.Equal(t, make([]float32, 4), results[i].Vector)

		var perr *ProviderError
		require.ErrorAs(t, results[i].Err, &perr)
		assert.Equal(t, 2, perr.Start)
		assert.Equal(t, 4, perr.End)
		assert.ErrorIs(t, results[i].Err, providerErr)
	}
}

func TestEmbedBatch_ShortResponseFailsBatch(t *testing.T) {
	e, _ := newTestEmbedder(&fakeProvider{dim: 4, short: true})

	results := e.EmbedBatch(context.Background(), texts(3))

	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Placeholder())
		assert.Len(t, r.Vector, 4)
	}
}

func TestEmbedBatch_WrongDimensionRejected(t *testing.T) {
	e, _ := newTestEmbedder(&fakeProvider{dim: 4, badDim: 3})

	results := e.EmbedBatch(context.Background(), texts(2))

	for _, r := range results {
		assert.ErrorIs(t, r.Err, ErrDimensionMismatch)
		assert.Len(t, r.Vector, 4)
	}
}

func TestEmbedBatch_CancelledContext(t *testing.T) {
	p := &fakeProvider{dim: 4}
	e, _ := newTestEmbedder(p, WithBatchSize(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.EmbedBatch(ctx, texts(3))

	require.Len(t, results, 3)
	assert.Empty(t, p.calls)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e, _ := newTestEmbedder(&fakeProvider{dim: 4})
	assert.Empty(t, e.EmbedBatch(context.Background(), nil))
}

func TestEmbedQuery(t *testing.T) {
	e, _ := newTestEmbedder(&fakeProvider{dim: 4})
	v, err := e.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, float32(3), v[0])

	e, _ = newTestEmbedder(&fakeProvider{dim: 4, badDim: 8})
	_, err = e.EmbedQuery(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	e, _ = newTestEmbedder(&fakeProvider{dim: 4, failOn: map[int]error{0: errors.New("down")}})
	_, err = e.EmbedQuery(context.Background(), "abc")
	var perr *ProviderError
	assert.ErrorAs(t, err, &perr)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{1.5, -2}, toFloat32([]float64{1.5, -2}))
}
