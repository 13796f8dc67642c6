package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"halcyon-hq/switchboard/pkg/audit"
	"halcyon-hq/switchboard/pkg/config"
	"halcyon-hq/switchboard/pkg/telemetry/health"
	"halcyon-hq/switchboard/pkg/telemetry/logging"
	"halcyon-hq/switchboard/pkg/telemetry/metrics"
	"halcyon-hq/switchboard/pkg/telemetry/tracing"
	"halcyon-hq/switchboard/pkg/turn"
)

// BuildInfo identifies the running binary on /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the assembled components the server exposes over HTTP.
type Deps struct {
	// Orchestrator runs turns. Required.
	Orchestrator *turn.Orchestrator

	// Health backs /health and /ready. Required.
	Health *health.Checker

	// Logger is the server's logger. Required.
	Logger *logging.Logger

	// Metrics backs /metrics when set.
	Metrics *metrics.Collector

	// AuditStorage backs the audit trail endpoint when set.
	AuditStorage audit.Storage

	// Tracer traces turn requests when set and enabled.
	Tracer *tracing.Tracer

	// Build is reported on /version.
	Build BuildInfo
}

// Server is the turn API HTTP server.
type Server struct {
	cfg      config.ServerConfig
	security config.SecurityConfig
	deps     Deps
	logger   *logging.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	running      bool
}

// New builds the server. It does not start listening.
func New(cfg config.ServerConfig, security config.SecurityConfig, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if deps.Health == nil {
		return nil, errors.New("server: health checker is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("server: logger is required")
	}

	return &Server{
		cfg:      cfg,
		security: security,
		deps:     deps,
		logger:   deps.Logger,
	}, nil
}

// Start begins serving and blocks until the context is cancelled, a
// shutdown signal arrives, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server: already running")
	}
	s.running = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.cfg.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}

	if s.security.TLS.Enabled {
		tlsConfig, err := s.configureTLS()
		if err != nil {
			return fmt.Errorf("configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("turn API listening",
			"address", s.cfg.ListenAddress,
			"tls", s.security.TLS.Enabled,
			"auth", s.security.Auth.Enabled,
		)

		var err error
		if s.security.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(s.security.TLS.CertFile, s.security.TLS.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("serve: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests and stops the listener. Turns still
// running after the configured shutdown timeout are abandoned.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("draining connections", "timeout", s.cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("shutdown incomplete", "error", err)
				shutdownErr = fmt.Errorf("shutdown: %w", err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("turn API stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the full route and middleware stack. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints stay outside auth so probes work unkeyed.
	mux.HandleFunc("/health", s.deps.Health.LivenessHandler())
	mux.HandleFunc("/ready", s.deps.Health.ReadinessHandler())
	mux.HandleFunc("/version", health.VersionHandler(s.deps.Build.Version, s.deps.Build.Commit, s.deps.Build.BuildTime))
	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	authn := Auth(s.security.Auth, s.logger)
	timeout := Timeout(s.cfg.RequestTimeout)

	// Tracing sits inside auth so rejected scrapes never produce spans.
	turns := Tracing(s.deps.Tracer, "/v1/turns")(timeout(NewTurnHandler(s.deps.Orchestrator, s.logger)))
	mux.Handle("/v1/turns", authn(turns))
	if s.deps.AuditStorage != nil {
		trail := Tracing(s.deps.Tracer, "/v1/calls/{call_id}/audit")(timeout(NewAuditTrailHandler(s.deps.AuditStorage, s.logger)))
		mux.Handle("/v1/calls/", authn(trail))
	}

	var handler http.Handler = mux
	handler = Logging(s.logger)(handler)
	handler = RequestID(handler)
	handler = Recovery(s.logger)(handler)
	return handler
}

// configureTLS builds the TLS listener configuration.
func (s *Server) configureTLS() (*tls.Config, error) {
	if s.security.TLS.CertFile == "" {
		return nil, errors.New("TLS cert file not specified")
	}
	if s.security.TLS.KeyFile == "" {
		return nil, errors.New("TLS key file not specified")
	}
	if _, err := os.Stat(s.security.TLS.CertFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS cert file not found: %s", s.security.TLS.CertFile)
	}
	if _, err := os.Stat(s.security.TLS.KeyFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS key file not found: %s", s.security.TLS.KeyFile)
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS13,
	}, nil
}
