package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/ctxindex/internal/filter"
	"github.com/mike-a-ellis/ctxindex/internal/query"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// makeSearchHandler creates the search_documents tool handler. Query
// failures come back as an empty result with a message so the calling
// agent can adjust its request.
func makeSearchHandler(q QueryService, defaults Defaults) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, SearchDocumentsOutput{
				Results: []Snippet{},
				Message: "query must not be empty",
			}, nil
		}

		mode := input.Mode
		if mode == "" {
			mode = string(defaults.Mode)
		}
		topK := input.TopK
		if topK <= 0 {
			topK = defaults.TopK
		}

		records, err := q.Search(ctx, query.Request{
			Query:             input.Query,
			Filter:            filter.Spec(input.Filters),
			Mode:              storage.Mode(mode),
			TopK:              topK,
			MinScore:          input.MinScore,
			DistinctDocuments: input.DistinctDocuments,
		})
		if err != nil {
			var qe *query.QueryError
			if errors.As(err, &qe) {
				return nil, SearchDocumentsOutput{
					Results: []Snippet{},
					Message: fmt.Sprintf("search failed: %v", qe),
				}, nil
			}
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]Snippet, len(records))
		for i, r := range records {
			results[i] = snippetFromRecord(r)
		}
		if len(results) == 0 {
			return nil, SearchDocumentsOutput{
				Results: results,
				Message: "No matching snippets found. Try broader search terms or fewer filters.",
			}, nil
		}
		return nil, SearchDocumentsOutput{Results: results}, nil
	}
}

// makeListContextsHandler creates the list_contexts tool handler.
func makeListContextsHandler(q QueryService) func(
	context.Context, *mcp.CallToolRequest, ListContextsInput,
) (*mcp.CallToolResult, ListContextsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListContextsInput) (
		*mcp.CallToolResult, ListContextsOutput, error,
	) {
		contexts, err := q.Contexts(ctx)
		if err != nil {
			var qe *query.QueryError
			if errors.As(err, &qe) {
				return nil, ListContextsOutput{
					Contexts: []query.ContextInfo{},
					Message:  fmt.Sprintf("listing failed: %v", qe),
				}, nil
			}
			return nil, ListContextsOutput{}, fmt.Errorf("failed to list contexts: %w", err)
		}
		if contexts == nil {
			contexts = []query.ContextInfo{}
		}
		return nil, ListContextsOutput{Contexts: contexts, Count: len(contexts)}, nil
	}
}

// makeContextSummaryHandler creates the get_context_summary tool handler.
func makeContextSummaryHandler(q QueryService) func(
	context.Context, *mcp.CallToolRequest, ContextSummaryInput,
) (*mcp.CallToolResult, ContextSummaryOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ContextSummaryInput) (
		*mcp.CallToolResult, ContextSummaryOutput, error,
	) {
		id := strings.TrimSpace(input.ContextID)
		if id == "" {
			return nil, ContextSummaryOutput{Message: "context_id must not be empty"}, nil
		}

		summary, err := q.ContextSummary(ctx, id)
		switch {
		case errors.Is(err, query.ErrContextNotFound):
			return nil, ContextSummaryOutput{
				Message: fmt.Sprintf("No indexed content for context %q. Use list_contexts to see available contexts.", id),
			}, nil
		case err != nil:
			var qe *query.QueryError
			if errors.As(err, &qe) {
				return nil, ContextSummaryOutput{Message: fmt.Sprintf("summary failed: %v", qe)}, nil
			}
			return nil, ContextSummaryOutput{}, fmt.Errorf("failed to summarize context: %w", err)
		}
		return nil, ContextSummaryOutput{Found: true, Summary: summary}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(q QueryService, defaults Defaults) func(
	context.Context, *mcp.CallToolRequest, IndexStatusInput,
) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IndexStatusInput) (
		*mcp.CallToolResult, IndexStatusOutput, error,
	) {
		st, err := q.Status(ctx)
		if err != nil {
			return nil, IndexStatusOutput{}, fmt.Errorf("failed to get index status: %w", err)
		}

		out := IndexStatusOutput{
			Healthy:      st.Healthy,
			Error:        st.Error,
			Dimension:    st.Dimension,
			TotalChunks:  st.TotalChunks,
			Placeholders: st.Placeholders,
			Contexts:     st.Contexts,
			DefaultMode:  string(defaults.Mode),
		}
		if st.Placeholders > 0 {
			out.Warning = fmt.Sprintf("%d chunks have no embedding yet and only match keyword searches. Re-run ingestion to retry them.", st.Placeholders)
		}
		return nil, out, nil
	}
}
