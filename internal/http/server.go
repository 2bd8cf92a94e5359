// Package http provides the HTTP server that exposes the evidence API, health checks and
// metrics.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/provenance/internal/metrics"
)

// ReadinessCheck reports whether a component can serve requests.
type ReadinessCheck func(ctx context.Context) error

// RouteRegistrar mounts handlers on the /v1 group.
type RouteRegistrar interface {
	RegisterRoutes(v1 *gin.RouterGroup)
}

// RouterConfig holds the middleware settings of the API router.
type RouterConfig struct {
	CORSEnabled             bool
	CORSAllowOrigins        string
	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	// MetricsProvider enables HTTP request metrics when set.
	MetricsProvider  *metrics.Provider
	MetricsNamespace string
}

// Server is the API server.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
	checks map[string]ReadinessCheck
}

// NewServer creates a server. Checks are run by the readiness endpoint.
func NewServer(
	host string,
	port int,
	logger *slog.Logger,
	checks map[string]ReadinessCheck,
) *Server {
	return &Server{
		logger: logger,
		checks: checks,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the router. Background middleware work stops when ctx is done.
func (s *Server) SetupRouter(ctx context.Context, cfg RouterConfig, registrars ...RouteRegistrar) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	if cors := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); cors != nil {
		router.Use(cors)
	}
	if cfg.MetricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(cfg.MetricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}
	for _, r := range registrars {
		r.RegisterRoutes(v1)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			ready = false
			components[name] = "error"
			s.logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
			continue
		}
		components[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		s.SetupRouter(ctx, RouterConfig{})
	}
	s.server.Handler = s.router

	return listenAndServe(s.server, s.logger, "http")
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}
