package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public.
	r.Get("/health", s.handleHealth())
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// MCP surface. Auth wraps the whole group when configured.
	r.Group(func(r chi.Router) {
		if s.config.Auth.IsConfigured() {
			r.Use(authMiddleware(s.config.Auth, s.logger))
		}
		r.Post("/mcp/tools/{name}", s.handleToolCall())
		r.Get("/mcp/resources/*", s.handleResource())
	})

	return r
}
