// Package api implements the HTTP API server for crev.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/workspace"
)

// Options configures the server and the workspaces it creates per session.
type Options struct {
	Addr    string
	Service workspace.Service
	// Workspace is the template for every websocket session. Its Logger is
	// replaced by a session-scoped one.
	Workspace workspace.Options
	// Cases are run when a start_run message does not carry its own.
	Cases  []model.TestCase
	Logger zerolog.Logger
}

// Server is the crev HTTP API server.
type Server struct {
	addr   string
	opts   Options
	log    zerolog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// New creates a new API server.
func New(opts Options) *Server {
	s := &Server{
		addr: opts.Addr,
		opts: opts,
		log:  opts.Logger.With().Str("component", "api").Logger(),
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("POST /api/decorate", s.handleDecorate)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("crev API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
