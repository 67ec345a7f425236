package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/memvault/memvault/internal/mcp"
)

// maxToolBody caps tool request bodies at 1 MiB.
const maxToolBody = 1 << 20

// handleToolCall returns the handler for POST /mcp/tools/{name}. The
// dispatcher produces the envelope for every outcome; this handler only
// moves bytes and maps the envelope onto an HTTP status.
func (s *Server) handleToolCall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxToolBody))
		if err != nil {
			writeEnvelope(w, mcp.Fail(mcp.Errf(mcp.CodeInvalidRequest, "reading request body: %v", err)))
			return
		}

		// Tool calls are bounded; resource streams deliberately are not.
		ctx, cancel := context.WithTimeout(r.Context(), s.config.ToolTimeout)
		defer cancel()

		writeEnvelope(w, s.dispatcher.CallToolRaw(ctx, name, body))
	}
}

// handleResource returns the handler for GET /mcp/resources/*. Resolution
// failures happen before the first frame and render as envelopes; once
// streaming starts the response is committed and any failure truncates
// the stream silently.
func (s *Server) handleResource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := chi.URLParam(r, "*")

		it, derr := s.dispatcher.OpenResource(r.Context(), path)
		if derr != nil {
			writeEnvelope(w, mcp.Fail(derr))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}

		state := s.stream.Run(r.Context(), w, flush, it)
		s.logger.Debug("resource stream finished", "path", path, "state", state)
	}
}

func writeEnvelope(w http.ResponseWriter, env mcp.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.HTTPStatus())
	_ = json.NewEncoder(w).Encode(env)
}
