// Package mcp exposes engramd over the Model Context Protocol so
// agents can read and write memory through tool calls.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls internal services directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/logging"
	"github.com/engramlabs/engramd/internal/services"
	"github.com/engramlabs/engramd/internal/vectorstore"
)

// Server bridges MCP tool calls onto the service registry.
type Server struct {
	mcp      *mcp.Server
	registry services.Registry
	scope    vectorstore.Scope
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "engramd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "engramd",
		Version: "1.0.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server. The API key is verified once at
// startup; the resolved scope applies to every tool call on this
// stdio session, so an agent can never reach outside its own scope.
func NewServer(ctx context.Context, cfg *Config, registry services.Registry, apiKey string) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	scope, err := registry.MetaStore().VerifyAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("verifying api key: %w", err)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		registry: registry,
		scope:    scope,
		logger:   cfg.Logger.Named("mcp"),
	}

	s.registerTools()

	return s, nil
}

// scopedContext attaches the session scope to a tool call context.
func (s *Server) scopedContext(ctx context.Context) context.Context {
	sc := s.scope
	return vectorstore.ContextWithScope(ctx, &sc)
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport",
		zap.String("tenant", s.scope.TenantID),
		zap.String("project", s.scope.ProjectID))
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
