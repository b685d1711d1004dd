package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the OpenAI model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the native vector size of text-embedding-3-small.
	DefaultDimension = 1536
)

// Provider turns texts into vectors. Implementations return exactly one
// vector per input text, in input order, or an error for the whole call.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ClientConfig configures the OpenAI provider.
type ClientConfig struct {
	APIKey    string // falls back to OPENAI_API_KEY
	BaseURL   string // optional, for OpenAI-compatible endpoints
	Model     string
	Dimension int

	// RequestsPerMinute throttles calls to the embeddings endpoint. Zero disables it.
	RequestsPerMinute int

	// MaxElapsed bounds retries on rate-limit responses.
	MaxElapsed time.Duration
}

// Client is the OpenAI embeddings Provider.
type Client struct {
	client     *openai.Client
	model      string
	dimension  int
	limiter    *rate.Limiter
	maxElapsed time.Duration
}

// NewClient creates an OpenAI client for embedding generation.
// It returns an error if no API key is configured.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled here with backoff so the limiter sees every attempt.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(60 * time.Second),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	c := &Client{
		client:     &client,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		maxElapsed: cfg.MaxElapsed,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.dimension <= 0 {
		c.dimension = DefaultDimension
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 30 * time.Second
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., metadata generation).
func (c *Client) Client() *openai.Client {
	return c.client
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the requested vector size.
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed requests vectors for texts in one call, retrying with exponential
// backoff on rate limit errors (HTTP 429). Other errors fail immediately.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		params := openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(c.model),
		}
		// Only the v3 models accept an explicit dimension.
		if c.model != "text-embedding-ada-002" {
			params.Dimensions = openai.Int(int64(c.dimension))
		}

		resp, err := c.client.Embeddings.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("provider returned %d embeddings for %d texts", len(resp.Data), len(texts)))
		}

		// Place by response index; the API does not promise ordering.
		embeddings = make([][]float32, len(texts))
		for i, data := range resp.Data {
			pos := int(data.Index)
			if pos < 0 || pos >= len(texts) || embeddings[pos] != nil {
				pos = i
			}
			embeddings[pos] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
