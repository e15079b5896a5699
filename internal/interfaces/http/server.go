// Package http serves the factor-analysis API: read-only analysis and
// reconstruction endpoints plus the daily cache-invalidation hook.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/jgbdesk/factorcurve/internal/net/ratelimit"
	"github.com/jgbdesk/factorcurve/internal/telemetry/metrics"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// DefaultServerConfig returns a local-only server on :8080. Write timeout is
// generous because a cold-cache analyze call carries a full model build.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "127.0.0.1",
		Port:           8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
	}
}

// Server is the read-only HTTP front of the analyzer.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	limiter  *ratelimit.Limiter
	config   ServerConfig
}

// NewServer creates the HTTP server around the given handlers.
func NewServer(config ServerConfig, handlers *Handlers) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: handlers,
		limiter:  ratelimit.NewLimiter(config.RateLimitRPS, config.RateLimitBurst),
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware, loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimitMiddleware(s.limiter))
	api.HandleFunc("/pca/analyze", s.handlers.Analyze).Methods(http.MethodGet)
	api.HandleFunc("/pca/reconstruct", s.handlers.Reconstruct).Methods(http.MethodGet)
	api.HandleFunc("/pca/parameters", s.handlers.Parameters).Methods(http.MethodGet)
	api.HandleFunc("/cache/invalidate", s.handlers.Invalidate).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}
