// Package mcp exposes the context index to MCP clients.
package mcp

import (
	"time"

	"github.com/mike-a-ellis/ctxindex/internal/query"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the search text.
	Query string `json:"query" jsonschema:"The search query"`
	// Filters restricts results by chunk metadata.
	Filters map[string]any `json:"filters,omitempty" jsonschema:"Metadata filters, e.g. {\"context_id\": \"CTX-1\", \"tags_contains\": \"infra\", \"last_modified\": {\"gte\": 1700000000}}"`
	// Mode is keyword, vector, or hybrid.
	Mode string `json:"mode,omitempty" jsonschema:"Search mode: keyword, vector or hybrid (default hybrid)"`
	// TopK is the maximum number of snippets to return.
	TopK int `json:"top_k,omitempty" jsonschema:"Maximum number of snippets to return (1-50, default 10)"`
	// MinScore drops snippets scoring below it.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"Minimum relevance score between 0 and 1"`
	// DistinctDocuments returns at most one snippet per document.
	DistinctDocuments bool `json:"distinct_documents,omitempty" jsonschema:"Return only the best snippet of each document"`
}

// SearchDocumentsOutput contains the search results.
type SearchDocumentsOutput struct {
	Results []Snippet `json:"results"`
	// Message explains an empty or failed search.
	Message string `json:"message,omitempty"`
}

// Snippet is one chunk match with enough metadata to attribute it.
type Snippet struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Score        float64   `json:"score"`
	ContextID    string    `json:"context_id"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	Category     string    `json:"category"`
	SourcePath   string    `json:"source_path"`
	FileName     string    `json:"file_name"`
	LastModified time.Time `json:"last_modified"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkCount   int       `json:"chunk_count"`
}

func snippetFromRecord(r storage.Record) Snippet {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return Snippet{
		ID:           r.ID,
		Text:         r.Text,
		Score:        r.Score,
		ContextID:    r.ContextID,
		Title:        r.Title,
		Tags:         tags,
		Category:     r.Category,
		SourcePath:   r.SourcePath,
		FileName:     r.FileName,
		LastModified: r.LastModified,
		ChunkIndex:   r.ChunkIndex,
		ChunkCount:   r.ChunkCount,
	}
}

// ListContextsInput takes no parameters.
type ListContextsInput struct{}

// ListContextsOutput lists every indexed context.
type ListContextsOutput struct {
	Contexts []query.ContextInfo `json:"contexts"`
	Count    int                 `json:"count"`
	Message  string              `json:"message,omitempty"`
}

// ContextSummaryInput defines the input parameters for the get_context_summary tool.
type ContextSummaryInput struct {
	ContextID string `json:"context_id" jsonschema:"The context identifier, e.g. CTX-1"`
}

// ContextSummaryOutput describes one context.
type ContextSummaryOutput struct {
	Found   bool                  `json:"found"`
	Summary *query.ContextSummary `json:"summary,omitempty"`
	Message string                `json:"message,omitempty"`
}

// IndexStatusInput takes no parameters.
type IndexStatusInput struct{}

// IndexStatusOutput reports index health and counts.
type IndexStatusOutput struct {
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
	Dimension    int    `json:"dimension"`
	TotalChunks  int    `json:"total_chunks"`
	Placeholders int    `json:"placeholders"`
	Contexts     int    `json:"contexts"`
	DefaultMode  string `json:"default_mode"`
	// Warning is set when some chunks are keyword-only placeholders.
	Warning string `json:"warning,omitempty"`
}
