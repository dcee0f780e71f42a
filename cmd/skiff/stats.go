package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync state",
	Long: `Display the sync state of the local database: sequence positions,
queued operations, and connectivity.

Example:
  skiff stats
  skiff stats --db notes --json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	stats := db.Stats()

	if outputJSON {
		return outputAsJSON(cmd.OutOrStdout(), stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Sync State")
	fmt.Fprintln(out, "----------")
	fmt.Fprintf(out, "Client ID:     %s\n", stats.ClientID)
	fmt.Fprintf(out, "Online:        %v\n", stats.Online)
	fmt.Fprintf(out, "Confirmed seq: %d (%d ops)\n", stats.ConfirmedSeq, stats.ConfirmedCount)
	fmt.Fprintf(out, "Pending:       %d ops (local seq %d)\n", stats.PendingCount, stats.LocalSeq)
	fmt.Fprintf(out, "Checkpoint:    seq %d\n", stats.SavepointSeq)

	if stats.GapEvents > 0 {
		fmt.Fprintf(out, "Gap events:    %d\n", stats.GapEvents)
	}

	return nil
}
