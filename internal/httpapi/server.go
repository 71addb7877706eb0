// Package httpapi provides the REST API for engramd.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/services"
)

// Server provides HTTP endpoints for engramd.
type Server struct {
	echo     *echo.Echo
	registry services.Registry
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Version is reported by the service-info endpoint.
	Version string
	// AdminToken guards the /admin/v1 routes. Empty disables them.
	AdminToken string
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
}

// NewServer creates a new HTTP server.
func NewServer(registry services.Registry, logger *logging.Logger, cfg *Config) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8765,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
		}))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Propagate the request ID into log context.
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		registry: registry,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Unauthenticated operational endpoints.
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Tenant API: every route requires a valid key and is rate limited.
	api := s.echo.Group("/api/v1")
	api.Use(s.apiKeyAuth())
	api.Use(s.rateLimit())

	api.POST("/memories", s.handleAddMemory)
	api.GET("/memories", s.handleListMemories)
	api.POST("/memories/search", s.handleSearchMemories)
	api.GET("/memories/:id", s.handleGetMemory)
	api.PATCH("/memories/:id", s.handleUpdateMemory)
	api.DELETE("/memories/:id", s.handleDeleteMemory)
	api.GET("/stats", s.handleStats)

	api.POST("/channels/:channel/messages", s.handleAppendMessage)
	api.GET("/channels/:channel/messages", s.handleChannelHistory)
	api.GET("/channels/:channel/context", s.handleChannelContext)

	// Admin API: only mounted when a token is configured.
	if s.config.AdminToken != "" {
		adm := s.echo.Group("/admin/v1")
		adm.Use(s.adminAuth())

		adm.POST("/tenants", s.handleCreateTenant)
		adm.GET("/tenants", s.handleListTenants)
		adm.DELETE("/tenants/:tenant", s.handleDeleteTenant)
		adm.POST("/tenants/:tenant/projects", s.handleCreateProject)
		adm.GET("/tenants/:tenant/projects", s.handleListProjects)
		adm.DELETE("/tenants/:tenant/projects/:project", s.handleDeleteProject)
		adm.POST("/tenants/:tenant/apikeys", s.handleCreateAPIKey)
		adm.GET("/tenants/:tenant/apikeys", s.handleListAPIKeys)
		adm.DELETE("/apikeys/:id", s.handleRevokeAPIKey)
	}
}

// RootResponse is the service-info body for GET /.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) handleRoot(c echo.Context) error {
	version := s.config.Version
	if version == "" {
		version = "dev"
	}
	return c.JSON(http.StatusOK, RootResponse{Name: "engramd", Version: version})
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
