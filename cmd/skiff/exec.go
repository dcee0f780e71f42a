package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Run raw SQL locally",
	Long: `Execute a raw SQL statement against the local engine.

Raw statements do not enter the operation log and do not replicate.
Use them for schema setup; use insert, update, and delete for
replicated mutations.

Example:
  skiff exec "CREATE TABLE IF NOT EXISTS notes (id TEXT PRIMARY KEY, body TEXT)"`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Exec(args[0]); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd.OutOrStdout(), map[string]bool{"ok": true})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}
