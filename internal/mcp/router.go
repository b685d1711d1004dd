package mcp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the landing page at /, the health check at /health, and
// the MCP endpoint at /mcp.
func (s *Server) Routes(stateless bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.NewLandingHandler())
	r.With(middleware.Timeout(10*time.Second)).Get("/health", NewHealthHandler(s.query))
	r.Handle("/mcp", s.HTTPHandler(stateless))
	return r
}
