package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/engramlabs/engramd/internal/mcp"
)

// apiKeyFlag is the --api-key value for the mcp subcommand.
var apiKeyFlag string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdio for a single agent",
	Long: `Serve the Model Context Protocol over stdio. The API key is
verified once at startup and pins the session to its tenant, project,
and user scope; every tool call runs inside that scope.

The key comes from --api-key or the ENGRAMD_API_KEY environment
variable. Stdout carries the MCP protocol, logs go to stderr.

Examples:
  ENGRAMD_API_KEY=eg_... engramd mcp
  engramd mcp --api-key eg_...`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key for this session (or ENGRAMD_API_KEY)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiKey := apiKeyFlag
	if apiKey == "" {
		apiKey = os.Getenv("ENGRAMD_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("api key required: pass --api-key or set ENGRAMD_API_KEY")
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := mcp.DefaultConfig()
	cfg.Version = version
	cfg.Logger = a.logger

	srv, err := mcp.NewServer(ctx, cfg, a.registry, apiKey)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	a.logger.Info(ctx, "serving mcp on stdio", zap.String("version", version))
	return srv.Run(ctx)
}
