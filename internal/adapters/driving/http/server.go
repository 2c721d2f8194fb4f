package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	version    string
	logger     *slog.Logger

	// Services
	controlService driving.ControlService
	jobService     driving.JobService
	configService  driving.ConfigService

	// Infrastructure
	auth driven.AuthAdapter // optional: nil disables bearer auth
	db   Pinger             // PostgreSQL health check
	lock Pinger             // Distributed lock health check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string
	Logger  *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// Services groups the driving ports the API exposes.
type Services struct {
	Control driving.ControlService
	Jobs    driving.JobService
	Configs driving.ConfigService
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	services Services,
	auth driven.AuthAdapter, // can be nil
	db Pinger,
	lock Pinger, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:         http.NewServeMux(),
		version:        cfg.Version,
		logger:         logger,
		controlService: services.Control,
		jobService:     services.Jobs,
		configService:  services.Configs,
		auth:           auth,
		db:             db,
		lock:           lock,
	}

	s.setupRoutes()

	s.handler = NewRecoveryMiddleware(logger).Handler(
		NewLoggingMiddleware(logger).Handler(
			NewCORSMiddleware().Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.auth)
	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Control endpoint. Non-POST methods reach the handler so they get a JSON 405.
	for _, method := range []string{"POST", "GET", "PUT", "PATCH", "DELETE"} {
		s.router.Handle(method+" /api/v1/jobs/control", protect(s.handleControl))
	}

	// Job endpoints
	s.router.Handle("GET /api/v1/jobs", protect(s.handleListJobs))
	s.router.Handle("GET /api/v1/jobs/{id}", protect(s.handleGetJob))
	s.router.Handle("POST /api/v1/tables/{tableId}/sync", protect(s.handleTriggerSync))

	// Sync config endpoints
	s.router.Handle("GET /api/v1/configs", protect(s.handleListConfigs))
	s.router.Handle("GET /api/v1/configs/{tableId}", protect(s.handleGetConfig))
	s.router.Handle("PUT /api/v1/configs/{tableId}", protect(s.handleSaveConfig))
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
