package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SQL query",
	Long: `Run a SELECT statement against the local database and print the rows.

Placeholders bind positionally with --arg, repeated once per parameter.

Example:
  skiff query "SELECT * FROM notes"
  skiff query "SELECT body FROM notes WHERE id = ?" --arg n1
  skiff query "SELECT count(*) AS n FROM notes" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var queryArgs []string

func init() {
	queryCmd.Flags().StringArrayVar(&queryArgs, "arg", nil, "Bind a query placeholder (repeatable, positional)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	bind := make([]any, len(queryArgs))
	for i, a := range queryArgs {
		bind[i] = a
	}

	result, err := db.Query(args[0], bind...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	return outputRows(cmd, result)
}
