package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>ctxindex MCP Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding: 3rem 1rem; }
  .card { max-width: 640px; width: 100%; background: #1e293b; border-radius: 12px; padding: 2.5rem; }
  h1 { margin: 0 0 0.5rem; color: #f8fafc; }
  .subtitle { color: #94a3b8; margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.5rem 0 0.5rem; }
  a { color: #38bdf8; text-decoration: none; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; }
  code, .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; }
  .endpoint { color: #a5b4fc; }
  li { margin-bottom: 0.4rem; }
</style>
</head>
<body>
<div class="card">
  <h1>ctxindex</h1>
  <p class="subtitle">Keyword, semantic, and hybrid search over indexed context documents via the Model Context Protocol. Version {{.Version}}.</p>

  <div class="section-title">Connect</div>
  <pre><code>{"type": "http", "url": "{{.MCPURL}}"}</code></pre>

  <div class="section-title">Tools</div>
  <ul>
  {{- range .Tools}}
    <li><code>{{.Name}}</code> {{.Description}}</li>
  {{- end}}
  </ul>

  <div class="section-title">Endpoints</div>
  <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
  <p><a href="/health" class="endpoint">/health</a> Health check</p>
</div>
</body>
</html>`))

type landingTool struct {
	Name        string
	Description string
}

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func (s *Server) NewLandingHandler() http.HandlerFunc {
	var tools []landingTool
	for _, name := range []string{"search_documents", "list_contexts", "get_context_summary", "get_index_status"} {
		tools = append(tools, landingTool{Name: name, Description: toolSummaries[name]})
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingTemplate.Execute(w, map[string]any{
			"Version": s.version,
			"MCPURL":  scheme + "://" + r.Host + "/mcp",
			"Tools":   tools,
		})
	}
}

var toolSummaries = map[string]string{
	"search_documents":    "find attributed snippets with optional metadata filters",
	"list_contexts":       "list context ids and snippet counts",
	"get_context_summary": "titles, categories, and tags for one context",
	"get_index_status":    "backend health and index counts",
}
