package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eshaffer321/audience-mix/internal/api/handlers"
	"github.com/eshaffer321/audience-mix/internal/api/middleware"
	"github.com/eshaffer321/audience-mix/internal/application/service"
)

// allowedMethods lists every method a route below is registered with.
var allowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string

	// MetricsGatherer backs GET /metrics; nil disables the endpoint.
	MetricsGatherer prometheus.Gatherer
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *service.DistributionService
}

// NewServer creates a new API server.
func NewServer(cfg Config, svc *service.DistributionService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	// CORS
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: allowedMethods,
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         10 * time.Minute,
	}
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(s.svc, s.logger)
	s.router.Get("/health", healthHandler.ServeHTTP)

	if s.config.MetricsGatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.config.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Presets
		presetsHandler := handlers.NewPresetsHandler(s.svc.DefaultKeys())
		r.Get("/presets/age", presetsHandler.Age)
		r.Get("/presets/default", presetsHandler.Default)

		// Stateless allocation
		allocateHandler := handlers.NewAllocateHandler(s.svc, s.logger)
		r.Post("/allocate", allocateHandler.ServeHTTP)

		// Saved distributions
		distHandler := handlers.NewDistributionsHandler(s.svc, s.logger)
		r.Post("/distributions", distHandler.Create)
		r.Get("/distributions", distHandler.List)
		r.Get("/distributions/{id}", distHandler.Get)
		r.Delete("/distributions/{id}", distHandler.Delete)
		r.Post("/distributions/{id}/changes", distHandler.ApplyChange)
		r.Get("/distributions/{id}/changes", distHandler.History)
		r.Post("/distributions/{id}/reset", distHandler.Reset)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
