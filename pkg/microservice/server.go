// Package microservice serves a memoizer over HTTP.
package microservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BaseServer owns the HTTP listener and the mux that handlers are registered on.
type BaseServer struct {
	logger     zerolog.Logger
	httpPort   string
	httpServer *http.Server
	mux        *http.ServeMux

	mu         sync.RWMutex
	actualAddr string
}

const readHeaderTimeout = 5 * time.Second

// NewBaseServer creates a server for httpPort (e.g. ":8080", ":0" for any free port)
// with /healthz already registered.
func NewBaseServer(logger zerolog.Logger, httpPort string) *BaseServer {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HealthzHandler)

	return &BaseServer{
		logger:   logger.With().Str("component", "BaseServer").Logger(),
		httpPort: httpPort,
		mux:      mux,
		httpServer: &http.Server{
			Addr:              httpPort,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start listens and serves in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.httpPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.httpPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port actually bound, which differs from the configured one for ":0".
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.httpPort
	}
	return ":" + port
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
