package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/memvault/memvault/internal/mcp"
	"github.com/memvault/memvault/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

// Server is the HTTP front of the MCP surface. It exposes the tool and
// resource endpoints plus health and metrics, and owns nothing beyond
// references to the dispatcher and stream engine built at startup.
type Server struct {
	config     Config
	logger     *slog.Logger
	dispatcher *mcp.Dispatcher
	stream     *mcp.StreamEngine
	repo       repository.Repository
	gatherer   prometheus.Gatherer
	server     *http.Server
	startedAt  time.Time
}

// New builds a gateway server. gatherer may be nil, which disables the
// /metrics endpoint.
func New(cfg Config, dispatcher *mcp.Dispatcher, stream *mcp.StreamEngine, repo repository.Repository, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		stream:     stream,
		repo:       repo,
		gatherer:   gatherer,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:        s.config.Bind,
		Handler:     s.buildRouter(),
		ReadTimeout: s.config.ReadTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen failed: %w", err)
	}

	go func() {
		s.logger.Info("gateway listening", "addr", s.config.Bind)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully with the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("gateway shutting down")
	return s.server.Shutdown(shutdownCtx)
}
