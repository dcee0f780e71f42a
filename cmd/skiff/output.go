package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skiffdb/skiff"
)

// outputAsJSON writes v to w as indented JSON.
func outputAsJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputRows prints query results in the configured format.
func outputRows(cmd *cobra.Command, result *skiff.Result) error {
	if outputJSON {
		return outputAsJSON(cmd.OutOrStdout(), result)
	}
	return outputRowsHuman(cmd, result)
}

func outputRowsHuman(cmd *cobra.Command, result *skiff.Result) error {
	out := cmd.OutOrStdout()

	if len(result.Rows) == 0 {
		fmt.Fprintln(out, "No rows.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	for i, col := range result.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)

	for _, row := range result.Rows {
		for i, col := range result.Columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, formatValue(row[col]))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d row(s)\n", len(result.Rows))
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// outputOp reports a logged mutation and where it stands in the sync cycle.
func outputOp(cmd *cobra.Command, op *skiff.Operation, online bool) error {
	if outputJSON {
		return outputAsJSON(cmd.OutOrStdout(), op)
	}

	out := cmd.OutOrStdout()
	msg := fmt.Sprintf("%s on %s (op %s, local seq %d)", op.Type, op.Table, op.ID, op.LocalSeq)
	note := "queued offline; replicates on next connect"
	if online {
		note = "sent to the room; awaiting confirmation"
	}

	if isTTY() {
		fmt.Fprintln(out, successStyle.Render(iconSuccess+" "+msg))
		fmt.Fprintln(out, mutedStyle.Render("  "+note))
	} else {
		fmt.Fprintln(out, msg)
		fmt.Fprintln(out, "  "+note)
	}
	return nil
}

// outputError prints an error to w. In JSON mode the error is wrapped in an
// object so scripted callers can parse failures the same way as successes.
func outputError(w io.Writer, err error) {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]string{"error": err.Error()})
		return
	}

	if isTTY() {
		fmt.Fprintln(w, errorStyle.Render(iconError+" Error: "+err.Error()))
	} else {
		fmt.Fprintln(w, "Error: "+err.Error())
	}
}
