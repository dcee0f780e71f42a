package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Dump the operation log",
	Long: `Write the operation log as JSON Lines: a header describing the sync
state, then one confirmed operation per line in seq order, then one
pending operation per line in local order.

Example:
  skiff ops
  skiff ops --output oplog.jsonl`,
	RunE: runOps,
}

var opsOutput string

func init() {
	opsCmd.Flags().StringVarP(&opsOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runOps(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if opsOutput == "" {
		return db.DumpOps(cmd.OutOrStdout())
	}

	f, err := os.Create(opsOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", opsOutput, err)
	}

	if err := db.DumpOps(f); err != nil {
		f.Close()
		return fmt.Errorf("dump ops: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", opsOutput, err)
	}

	printSuccess(fmt.Sprintf("Operation log written to %s", opsOutput))
	return nil
}
