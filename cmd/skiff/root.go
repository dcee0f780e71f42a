package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff"
	"github.com/skiffdb/skiff/wsroom"
)

var (
	cfgName    string
	cfgDir     string
	cfgURL     string
	cfgRoom    string
	outputJSON bool
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "skiff",
	Short: "Skiff - offline-first replicated SQL",
	Long: `Skiff is an embedded SQL database that replicates through a shared room.

Mutations apply locally first and queue while offline. When connected,
an authority orders operations from every client and each replica
converges on the same state.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgName, "db", "", "Database name (default: $SKIFF_DB, then \"default\")")
	rootCmd.PersistentFlags().StringVar(&cfgDir, "dir", "", "State directory (default: $SKIFF_DIR, then ~/.skiff)")
	rootCmd.PersistentFlags().StringVar(&cfgURL, "url", "", "Authority endpoint; empty runs offline (default: $SKIFF_URL)")
	rootCmd.PersistentFlags().StringVar(&cfgRoom, "room", "", "Room to join (default: $SKIFF_ROOM, then the database name)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Verbose sync tracing to stderr")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(insertCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(opsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig builds the database configuration. Flags override environment
// variables; unset fields fall back to defaults inside skiff.Open.
func loadConfig() skiff.Config {
	cfg := skiff.ConfigFromEnv()

	if cfgName != "" {
		cfg.Name = cfgName
	}
	if cfgDir != "" {
		cfg.Dir = cfgDir
	}
	if cfgURL != "" {
		cfg.URL = cfgURL
	}
	if cfgRoom != "" {
		cfg.Room = cfgRoom
	}
	if debugMode {
		cfg.Debug = true
	}

	if cfg.URL != "" {
		cfg.Transport = wsroom.New()
	}

	return cfg
}

// openDatabase opens the configured database. When a URL is configured the
// open also dials the room; a failed dial degrades to offline operation.
func openDatabase(ctx context.Context) (*skiff.DB, error) {
	db, err := skiff.Open(ctx, loadConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
