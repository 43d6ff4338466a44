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

// Package server wires the round coordinator to its listeners: the share
// listener participants connect to, the submission API, the round timer,
// metrics and health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-sharechallenge/internal/config"
	"github.com/jeremyhahn/go-sharechallenge/internal/rest"
	"github.com/jeremyhahn/go-sharechallenge/internal/share"
	"github.com/jeremyhahn/go-sharechallenge/pkg/challenge"
	"github.com/jeremyhahn/go-sharechallenge/pkg/crypto/rand"
	"github.com/jeremyhahn/go-sharechallenge/pkg/health"
	"github.com/jeremyhahn/go-sharechallenge/pkg/logging"
	"github.com/jeremyhahn/go-sharechallenge/pkg/metrics"
	"github.com/jeremyhahn/go-sharechallenge/pkg/ratelimit"
)

// stateCollectInterval is how often sampled challenge gauges are refreshed.
const stateCollectInterval = 5 * time.Second

// Server runs one challenge: a coordinator and everything that drives it.
type Server struct {
	config    *config.Config
	mu        sync.RWMutex
	logger    logging.Logger
	logLevel  *slog.LevelVar
	logOutput io.Writer
	version   string

	rng         rand.Resolver
	coordinator *challenge.Coordinator
	timer       *challenge.RoundTimer

	restServer    *rest.Server
	shareListener *share.Listener
	metricsServer *http.Server
	metricsLn     net.Listener

	httpLimiter *ratelimit.Limiter
	connLimiter *ratelimit.Limiter

	healthChecker    *health.Checker
	metricsCollector *metrics.StateCollector

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) { s.logOutput = w }
}

// WithVersion overrides the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server protecting secret. Nothing is bound until Start.
func New(cfg *config.Config, secret string, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		logLevel:   new(slog.LevelVar),
		logOutput:  os.Stderr,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.version == "" {
		s.version = getBuildVersion()
	}
	s.logger = setupLogger(cfg.Logging, s.logOutput, s.logLevel)

	if err := s.initialize(secret); err != nil {
		cancel()
		s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize(secret string) error {
	rng, err := rand.NewResolver(rngConfig(s.config.RNG))
	if err != nil {
		return fmt.Errorf("failed to initialize RNG: %w", err)
	}
	s.rng = rng
	s.logger.Info("Entropy source ready", logging.String("mode", string(rng.Mode())))

	s.coordinator, err = challenge.NewCoordinator(secret,
		challenge.WithLogger(s.logger.With(logging.String("component", "coordinator"))),
		challenge.WithRandom(rng),
		challenge.WithTimeLimit(s.config.Challenge.TimeLimit),
		challenge.WithMinParts(s.config.Challenge.MinParts),
		challenge.WithShareWriteTimeout(s.config.Challenge.ShareWriteTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	s.timer = challenge.NewRoundTimer(s.coordinator, s.config.Challenge.RoundInterval,
		s.logger.With(logging.String("component", "timer")))

	s.initializeRateLimits()

	s.shareListener, err = share.NewListener(&share.Config{
		Addr:      s.config.ShareAddr(),
		Registrar: s.coordinator,
		Limiter:   s.connLimiter,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create share listener: %w", err)
	}

	if err := s.initializeREST(); err != nil {
		return err
	}

	if s.config.Health.Enabled {
		s.initializeHealth()
		s.restServer.SetHealthChecker(s.healthChecker)
	}
	return nil
}

// setupLogger builds the process logger. The level lives in a LevelVar so
// Reload can change it for every component at once.
func setupLogger(cfg config.LoggingConfig, out io.Writer, level *slog.LevelVar) logging.Logger {
	level.Set(logging.ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return logging.NewSlogAdapter(&logging.SlogConfig{Logger: slog.New(handler)})
}

// getBuildVersion retrieves the version from build information
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func rngConfig(cfg config.RNGConfig) *rand.Config {
	rc := &rand.Config{
		Mode:         rand.Mode(strings.ToLower(cfg.Mode)),
		FallbackMode: rand.Mode(strings.ToLower(cfg.FallbackMode)),
	}
	if cfg.TPM2 != nil {
		rc.TPM2 = &rand.TPM2Config{Device: cfg.TPM2.Device, MaxRequestSize: cfg.TPM2.MaxRequestSize}
	}
	if cfg.PKCS11 != nil {
		rc.PKCS11 = &rand.PKCS11Config{Module: cfg.PKCS11.Module, SlotID: cfg.PKCS11.SlotID, PIN: cfg.PKCS11.PIN}
	}
	return rc
}

func (s *Server) initializeRateLimits() {
	rl := s.config.RateLimit
	if !rl.Enabled {
		return
	}
	s.httpLimiter = ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: rl.RequestsPerMin,
		Burst:             rl.Burst,
		TrustProxyHeaders: rl.TrustProxyHeaders,
	})
	if rl.ConnectionsPerMin > 0 {
		s.connLimiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: rl.ConnectionsPerMin,
			Burst:             rl.Burst,
		})
	}
	s.logger.Info("Rate limiting enabled",
		logging.Int("requests_per_min", rl.RequestsPerMin),
		logging.Int("connections_per_min", rl.ConnectionsPerMin))
}

// metricsOnAPI reports whether /metrics is served by the API listener.
func (s *Server) metricsOnAPI() bool {
	m := s.config.Metrics
	return m.Enabled && (m.Port == 0 || m.Port == s.config.Server.APIPort)
}

func (s *Server) initializeREST() error {
	tlsConfig, err := s.config.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	restConfig := &rest.Config{
		Addr:        s.config.APIAddr(),
		Submitter:   s.coordinator,
		Rounds:      s.coordinator,
		Version:     s.version,
		TLSConfig:   tlsConfig,
		RateLimiter: s.httpLimiter,
		Logger:      s.logger,
	}
	if s.metricsOnAPI() {
		restConfig.MetricsHandler = promhttp.Handler()
		restConfig.MetricsPath = s.config.Metrics.Path
	}

	s.restServer, err = rest.NewServer(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}
	return nil
}

func (s *Server) initializeHealth() {
	s.healthChecker = health.NewChecker()
	s.healthChecker.RegisterCheck("api", health.ListeningCheck("api", s.restServer.Addr))
	s.healthChecker.RegisterCheck("share", health.ListeningCheck("share", s.shareListener.Addr))
	s.healthChecker.RegisterCheck("entropy", health.EntropyCheck(s.rng.Rand))
	// two missed rounds before readiness fails
	s.healthChecker.RegisterCheck("rounds", health.RoundCheck(s.coordinator,
		s.coordinator.LastRoundStarted, 2*s.config.Challenge.RoundInterval+time.Second))

	s.logger.Info("Health checker initialized", logging.Int("checks", len(s.healthChecker.GetAllChecks())))
}

// Start binds every listener, then begins serving and scheduling rounds.
// A bind failure stops anything already bound and is returned.
func (s *Server) Start() error {
	s.logger.Info("Starting challenge server",
		logging.String("version", s.version),
		logging.Duration("round_interval", s.config.Challenge.RoundInterval),
		logging.Duration("time_limit", s.config.Challenge.TimeLimit))

	if s.config.Metrics.Enabled {
		s.initializeMetrics()
	} else {
		metrics.Disable()
	}

	if err := s.shareListener.Start(); err != nil {
		return err
	}
	if err := s.restServer.Listen(); err != nil {
		_ = s.shareListener.Stop()
		return err
	}
	if err := s.listenMetrics(); err != nil {
		_ = s.shareListener.Stop()
		_ = s.restServer.Stop(context.Background())
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.restServer.Serve(); err != nil {
			s.logger.Error("REST server error", logging.Error(err))
		}
	}()

	if s.metricsServer != nil {
		s.wg.Add(1)
		go s.serveMetrics()
	}

	s.timer.Start(s.ctx)

	if s.healthChecker != nil {
		s.healthChecker.MarkStarted()
	}

	s.logger.Info("Challenge server started",
		logging.String("api_addr", s.restServer.Addr().String()),
		logging.String("share_addr", s.shareListener.Addr().String()))
	return nil
}

func (s *Server) initializeMetrics() {
	metrics.Enable()
	if s.metricsCollector == nil {
		s.metricsCollector = metrics.StartStateCollector(s.ctx, s.coordinator, stateCollectInterval)
	}
}

// listenMetrics binds the dedicated metrics listener, if one is configured.
func (s *Server) listenMetrics() error {
	if !s.config.Metrics.Enabled || s.metricsOnAPI() {
		return nil
	}

	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Metrics.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())
	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.metricsLn = ln
	return nil
}

func (s *Server) serveMetrics() {
	defer s.wg.Done()
	s.logger.Info("Starting metrics server",
		logging.String("addr", s.metricsLn.Addr().String()),
		logging.String("path", s.config.Metrics.Path))

	if err := s.metricsServer.Serve(s.metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Metrics server error", logging.Error(err))
	}
}

// Shutdown stops the round timer and all listeners. Participants still
// registered are left for the process exit to close. Safe to call more
// than once.
func (s *Server) Shutdown() error {
	var errs []error
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		s.timer.Stop()
		s.cancel()

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.shareListener.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("share listener: %w", err))
		}
		if err := s.restServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("rest server: %w", err))
		}
		if s.metricsServer != nil {
			if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server: %w", err))
			}
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.logger.Warn("Shutdown timeout exceeded, forcing stop")
		}

		if s.healthChecker != nil {
			s.healthChecker.MarkNotStarted()
		}
		s.closeResources()

		close(s.shutdownCh)
		s.logger.Info("Server shutdown complete", logging.Uint64("rounds", s.coordinator.Round()))
	})
	return errors.Join(errs...)
}

// closeResources releases the RNG, limiters and collector.
func (s *Server) closeResources() {
	if s.metricsCollector != nil {
		s.metricsCollector.Stop()
	}
	if s.httpLimiter != nil {
		s.httpLimiter.Stop()
	}
	if s.connLimiter != nil {
		s.connLimiter.Stop()
	}
	if s.rng != nil {
		if err := s.rng.Close(); err != nil {
			s.logger.Warn("Failed to close entropy source", logging.Error(err))
		}
	}
}

// WaitForShutdown blocks until the server is shut down
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// Coordinator returns the round coordinator.
func (s *Server) Coordinator() *challenge.Coordinator {
	return s.coordinator
}

// RESTServer returns the REST server instance
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// ShareListener returns the share listener instance
func (s *Server) ShareListener() *share.Listener {
	return s.shareListener
}

// HealthChecker returns the health checker, or nil when disabled.
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}

// MetricsAddr returns the dedicated metrics listener address, or nil when
// metrics are off or served on the API listener.
func (s *Server) MetricsAddr() net.Addr {
	if s.metricsLn == nil {
		return nil
	}
	return s.metricsLn.Addr()
}

// Logger returns the server logger.
func (s *Server) Logger() logging.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
