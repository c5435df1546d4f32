// Package server exposes retrieval and chat over HTTP. Search and
// status are plain JSON endpoints; chat streams server-sent events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/index"
	"github.com/Aman-CERP/noterag/internal/search"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Searcher is the retrieval surface the handlers need.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, localRatio float64) ([]search.Result, error)
	LocalSearch(ctx context.Context, query string, topK int) ([]search.Result, error)
	WebSearch(ctx context.Context, query string, topK int) []search.Result
	Budget(localRatio float64) (localK, webK int)
}

// Indexer rebuilds the index and reports its stats.
type Indexer interface {
	Build(ctx context.Context) error
	Stats(ctx context.Context) (index.IndexStats, error)
}

// AnswerStreamer produces an answer in fragments.
type AnswerStreamer interface {
	Stream(ctx context.Context, query string, results []search.Result, emit func(fragment string) error) error
}

// Server serves the HTTP API.
type Server struct {
	cfg      config.ServerConfig
	indexer  Indexer
	searcher Searcher
	answerer AnswerStreamer
	logger   *slog.Logger
}

// New wires the HTTP server.
func New(cfg config.ServerConfig, indexer Indexer, searcher Searcher, answerer AnswerStreamer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		indexer:  indexer,
		searcher: searcher,
		answerer: answerer,
		logger:   logger,
	}
}

// Handler builds the route table wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/rebuild-index", s.handleRebuildIndex)
	return s.corsMiddleware(mux)
}

// ListenAndServe starts the server and blocks until the context is
// cancelled, then drains active connections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	s.logger.Info("server_listening", slog.Int("port", s.cfg.Port))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
