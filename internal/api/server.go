package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ekklesia/commhub/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a new API server serving deps.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(NewHandlers(deps), cfg),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Bulk sends walk every recipient inside the request.
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
