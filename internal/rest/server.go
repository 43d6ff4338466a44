// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharechallenge.
//
// go-sharechallenge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-sharechallenge/pkg/challenge"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
	"github.com/jeremyhahn/go-sharechallenge/pkg/ratelimit"
)

// Server represents the submission API server.
type Server struct {
	server    *http.Server
	handlers  *HandlerContext
	addr      string
	tlsConfig *tls.Config
	limiter   *ratelimit.Limiter
	logger    logging.Logger

	metricsHandler http.Handler
	metricsPath    string

	mu       sync.Mutex
	listener net.Listener
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the host:port to listen on (default: ":8080")
	Addr string

	// Submitter verifies submissions, normally the round coordinator
	Submitter challenge.Submitter

	// Rounds backs GET /api/v1/round (optional)
	Rounds RoundInfo

	// Version is the API version string
	Version string

	// TLSConfig enables HTTPS when set
	TLSConfig *tls.Config

	// RateLimiter throttles submissions per client IP (optional)
	RateLimiter *ratelimit.Limiter

	// MetricsHandler is mounted at MetricsPath when set
	MetricsHandler http.Handler
	MetricsPath    string

	// HealthChecker backs the /health/* probes (optional)
	HealthChecker HealthChecker

	// Logger is the logging adapter (optional)
	Logger logging.Logger

	// MaxBodyBytes limits submission bodies (default: 64 KiB)
	MaxBodyBytes int64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewSlogAdapter(&logging.SlogConfig{Level: logging.LevelInfo})
	}
	log = log.With(logging.String("component", "rest"))

	handlers := NewHandlerContext(cfg.Submitter, cfg.Version, log)
	handlers.Rounds = cfg.Rounds
	handlers.HealthChecker = cfg.HealthChecker
	if cfg.MaxBodyBytes > 0 {
		handlers.MaxBodyBytes = cfg.MaxBodyBytes
	}

	server := &Server{
		handlers:       handlers,
		addr:           cfg.Addr,
		tlsConfig:      cfg.TLSConfig,
		limiter:        cfg.RateLimiter,
		logger:         log,
		metricsHandler: cfg.MetricsHandler,
		metricsPath:    cfg.MetricsPath,
	}

	server.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.setupRouter(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handleError(w, ErrMethodNotAllowed)
	})

	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	if s.metricsHandler != nil {
		r.Method(http.MethodGet, s.metricsPath, s.metricsHandler)
	}

	submissions := func(r chi.Router) {
		if s.limiter != nil && s.limiter.IsEnabled() {
			r.Use(ratelimit.Middleware(s.limiter))
		}
		r.Post("/secret", s.handlers.SubmitHandler)
	}

	r.Group(submissions)
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(submissions)
		r.Get("/round", s.handlers.RoundStatusHandler)
	})

	return r
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds the listening socket without serving. Bind errors surface
// here so startup can fail before any round begins.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind API listener on %s: %w", s.addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	return nil
}

// Serve accepts requests on the bound listener until Stop. It returns nil
// after a graceful shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("API listener not bound")
	}

	scheme := "http"
	if s.tlsConfig != nil {
		scheme = "https"
	}
	s.logger.Info("Submission API listening",
		logging.String("addr", ln.Addr().String()),
		logging.String("scheme", scheme))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Start binds and serves, blocking until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down submission API")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown submission API", logging.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	// Shutdown only closes listeners passed to Serve.
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("Failed to close API listener", logging.Error(err))
		}
	}

	s.logger.Info("Submission API stopped")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SetHealthChecker sets the health checker for the server.
func (s *Server) SetHealthChecker(checker HealthChecker) {
	s.handlers.SetHealthChecker(checker)
}
