package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <dest>",
	Short: "Export the database image",
	Long: `Write a standalone copy of the database to dest. The copy is a plain
SQLite file readable by any SQLite tooling; it carries the current
state including unconfirmed local mutations.

Example:
  skiff export backup.db`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ExportImage(args[0]); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	printSuccess(fmt.Sprintf("Database exported to %s", args[0]))
	return nil
}
