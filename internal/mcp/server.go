package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/ctxindex/internal/query"
	"github.com/mike-a-ellis/ctxindex/internal/storage"
)

// QueryService answers the tool calls. *query.Executor implements it.
type QueryService interface {
	Search(ctx context.Context, req query.Request) ([]storage.Record, error)
	Contexts(ctx context.Context) ([]query.ContextInfo, error)
	ContextSummary(ctx context.Context, id string) (*query.ContextSummary, error)
	Status(ctx context.Context) (*query.Status, error)
}

// Defaults apply to searches that leave mode or top_k unset.
type Defaults struct {
	Mode storage.Mode
	TopK int
}

// Config holds server dependencies.
type Config struct {
	Query    QueryService
	Defaults Defaults
	Version  string
}

// Server wraps the MCP server with its tools registered.
type Server struct {
	server  *mcp.Server
	query   QueryService
	version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	defaults := cfg.Defaults
	if defaults.Mode == "" {
		defaults.Mode = storage.ModeHybrid
	}
	if defaults.TopK <= 0 {
		defaults.TopK = query.DefaultTopK
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ctxindex",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_documents",
		Description: "Search indexed context documents by keyword, semantic similarity, or both. " +
			"Returns attributed snippets with their context id, title, tags, and source path.",
	}, makeSearchHandler(cfg.Query, defaults))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_contexts",
		Description: "List every indexed context id with its snippet count.",
	}, makeListContextsHandler(cfg.Query))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_context_summary",
		Description: "Describe one context: document and snippet counts, document titles, categories, and tags.",
	}, makeContextSummaryHandler(cfg.Query))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Report index health, vector dimension, snippet counts, and chunks still waiting for embeddings.",
	}, makeStatusHandler(cfg.Query, defaults))

	return &Server{server: server, query: cfg.Query, version: version}
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the tools over Streamable HTTP. A stateless handler
// keeps no sessions and cannot send server-to-client requests.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
