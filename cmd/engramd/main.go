// Engramd is a memory daemon for AI agents.
//
// It stores memory fragments in two places at once: a vector index for
// semantic search and a SQLite store for metadata and channel history.
// Agents reach it over HTTP or over MCP stdio.
//
// Usage:
//
//	# Start the daemon
//	engramd serve
//
//	# Serve MCP over stdio for a single agent
//	ENGRAMD_API_KEY=eg_... engramd mcp
//
//	# Provision a tenant and an API key
//	engramd admin tenant create acme
//	engramd admin project create acme support
//	engramd admin apikey create acme support alice --name "alice laptop"
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag value shared by all subcommands.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "engramd",
	Short: "Memory daemon for AI agents",
	Long: `engramd stores agent memories in a vector index plus a SQLite
metadata store, scoped per tenant, project, and user. It serves a REST
API and an MCP stdio surface.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.SetVersionTemplate("engramd {{.Version}} (" + gitCommit + ", " + buildDate + ")\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/engramd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(reconcileCmd)
}
