package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	// DefaultListenAddr binds the API to loopback only. The API is a
	// local diagnostic surface, not a fleet endpoint.
	DefaultListenAddr = "127.0.0.1:9178"

	defaultRequestTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the API server configuration.
type Config struct {
	// ListenAddr is the host:port the server binds.
	ListenAddr string

	// RequestTimeout bounds each request.
	RequestTimeout time.Duration

	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler
}

// Server is the agent's local HTTP API.
type Server struct {
	cfg    Config
	ctrl   Controller
	logger zerolog.Logger
	router chi.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates the API server and wires its routes. The server
// does not listen until Start is called.
func NewServer(cfg Config, ctrl Controller, logger zerolog.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		cfg:    cfg,
		ctrl:   ctrl,
		logger: logger.With().Str("component", "api").Logger(),
		router: chi.NewRouter(),
	}

	// Set up router middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.router.Get("/v1/healthy", s.handleHealthy)
	s.router.Get("/v1/status", s.handleStatus)
	s.router.Get("/v1/resolution", s.handleResolution)
	s.router.Get("/v1/facts", s.handleFacts)
	s.router.Get("/v1/device", s.handleDevice)
	s.router.Post("/v1/resolve", s.handleResolve)

	if cfg.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return s
}

// Start serves the API until ctx is cancelled, then shuts down
// gracefully. The listener is bound before serving starts, so a busy
// port fails fast.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{Handler: s.router}
	server := s.server
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Msg("API server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the server. Safe to call on a server that
// never started.
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("API server shutting down")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start. Reports
// the real port when the configured port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Router returns the chi router for testing or extension.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}
