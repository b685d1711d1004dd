package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum content length before truncation (in tokens).
const DefaultMaxTokens = 4000

// DefaultCategory is used when no category is declared or inferred.
const DefaultCategory = "general"

// DefaultCategories is the label set offered to the model.
var DefaultCategories = []string{"technical", "meeting", "planning", "reference", "process", "general"}

// DocumentMetadata contains LLM-generated metadata for a document.
type DocumentMetadata struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Generator infers a category and summary for documents that do not
// declare one in their header block.
type Generator struct {
	client     *openai.Client
	model      string
	categories []string
	maxTokens  int
	logger     *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithModel sets the chat model.
func WithModel(model string) GeneratorOption {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithCategories restricts answers to the given labels.
func WithCategories(categories []string) GeneratorOption {
	return func(g *Generator) {
		if len(categories) > 0 {
			g.categories = categories
		}
	}
}

// WithMaxTokens sets the truncation limit.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a metadata generator with the given OpenAI client.
func NewGenerator(client *openai.Client, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:     client,
		model:      openai.ChatModelGPT4oMini,
		categories: DefaultCategories,
		maxTokens:  DefaultMaxTokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify asks the model for a category and one-sentence summary.
// Unknown categories returned by the model are replaced by DefaultCategory.
func (g *Generator) Classify(ctx context.Context, title, content string) (*DocumentMetadata, error) {
	prompt := g.buildPrompt(title, g.truncateContent(content))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: g.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	return g.parseResponse(resp.Choices[0].Message.Content)
}

func (g *Generator) buildPrompt(title, content string) string {
	return fmt.Sprintf(`Classify this document and summarize it.

Title: %s

Content:
%s

Choose exactly one category from: %s.
Respond in JSON format:
{"category": "one of the categories", "summary": "One sentence describing the document"}`,
		title, content, strings.Join(g.categories, ", "))
}

func (g *Generator) parseResponse(raw string) (*DocumentMetadata, error) {
	var md DocumentMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	md.Category = strings.ToLower(strings.TrimSpace(md.Category))
	if !slices.Contains(g.categories, md.Category) {
		g.logger.Debug("model returned unknown category", "category", md.Category)
		md.Category = DefaultCategory
	}
	md.Summary = strings.TrimSpace(md.Summary)
	return &md, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxTokens * 4

	if len(content) <= maxChars {
		return content
	}

	g.logger.Debug("truncating content for classification",
		"from", len(content), "to", maxChars, "tokens", g.maxTokens)

	return content[:maxChars]
}
