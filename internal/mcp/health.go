package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mike-a-ellis/ctxindex/internal/query"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	Backend     string `json:"backend"`
	Error       string `json:"error,omitempty"`
	TotalChunks int    `json:"total_chunks"`
	Timestamp   string `json:"timestamp"`
}

// StatusReporter is the health check dependency.
type StatusReporter interface {
	Status(ctx context.Context) (*query.Status, error)
}

// NewHealthHandler creates an HTTP handler for the /health endpoint. It
// answers 503 when the backend is unreachable.
func NewHealthHandler(reporter StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		code := http.StatusOK

		st, err := reporter.Status(ctx)
		switch {
		case err != nil:
			response.Error = err.Error()
			fallthrough
		case !st.Healthy:
			if st != nil {
				response.Error = st.Error
			}
			response.Status = "unhealthy"
			response.Backend = "disconnected"
			code = http.StatusServiceUnavailable
		default:
			response.Status = "healthy"
			response.Backend = "connected"
			response.TotalChunks = st.TotalChunks
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	}
}
