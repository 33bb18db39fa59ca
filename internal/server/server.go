package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"blogwire/internal/config"
	"blogwire/internal/logger"
	"blogwire/internal/metrics"
	"blogwire/internal/persistence"
	"blogwire/internal/pipeline"

	"github.com/gin-gonic/gin"
)

// Runner triggers publication work. *pipeline.Pipeline satisfies it.
type Runner interface {
	GenerateOne(ctx context.Context, keyword string) *pipeline.Outcome
	RunCycle(ctx context.Context, opts pipeline.CycleOptions) (*pipeline.CycleResult, error)
}

// Server represents the HTTP server
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	db         persistence.Database
	runner     Runner
	metrics    *metrics.Collector
	config     config.Server
	log        *logger.Logger
	startedAt  time.Time
}

// New creates a new HTTP server instance. runner and collector may be nil; the
// trigger and /metrics routes are then not registered.
func New(db persistence.Database, runner Runner, collector *metrics.Collector, cfg config.Server) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    gin.New(),
		db:        db,
		runner:    runner,
		metrics:   collector,
		config:    cfg,
		log:       logger.Get(),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := cfg.Address
	if addr == "" {
		addr = ":5001"
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// WithLogger replaces the logger.
func (s *Server) WithLogger(l *logger.Logger) *Server {
	s.log = l
	return s
}

func (s *Server) setupMiddleware() {
	s.engine.Use(requestID())
	s.engine.Use(s.requestLogger())
	s.engine.Use(s.recovery())
	s.engine.Use(securityHeaders())
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/topics", s.handleListTopics)

	links := api.Group("/affiliate-links")
	links.GET("", s.handleListLinks)
	links.POST("", s.handleCreateLink)
	links.POST("/:id/click", s.handleLinkClick)

	if s.runner != nil {
		api.POST("/generate", s.handleGenerate)
		api.POST("/cycle", s.handleCycle)
	}
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Handler returns the routed engine (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.engine
}
