package main

import (
	"github.com/spf13/cobra"

	skiffmcp "github.com/skiffdb/skiff/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This lets coding agents like Claude Code query and mutate a skiff
database directly.

Configuration in Claude Code (~/.claude/claude_desktop_config.json):

  {
    "mcpServers": {
      "skiff": {
        "command": "skiff",
        "args": ["mcp"],
        "env": {
          "SKIFF_DB": "notes",
          "SKIFF_URL": "ws://localhost:8080"
        }
      }
    }
  }

Environment variables:
  SKIFF_DB    Database name (default: "default")
  SKIFF_DIR   State directory (default: ~/.skiff)
  SKIFF_URL   Authority endpoint (optional; empty runs offline)
  SKIFF_ROOM  Room to join (default: database name)`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	// The database persists for the server lifetime
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	server := skiffmcp.NewServer(db)
	return server.Run()
}
