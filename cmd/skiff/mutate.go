package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	mutateData  string
	mutateSet   string
	mutateWhere string
)

var insertCmd = &cobra.Command{
	Use:   "insert <table>",
	Short: "Insert or replace a row",
	Long: `Insert a row through the operation log. The write applies locally at
once and replicates when connected. Re-inserting an existing primary
key replaces the row.

Example:
  skiff insert notes --data '{"id":"n1","body":"hello"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runInsert,
}

var updateCmd = &cobra.Command{
	Use:   "update <table>",
	Short: "Update matching rows",
	Long: `Update rows through the operation log.

Example:
  skiff update notes --set '{"body":"revised"}' --where '{"id":"n1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <table>",
	Short: "Delete matching rows",
	Long: `Delete rows through the operation log.

Example:
  skiff delete notes --where '{"id":"n1"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	insertCmd.Flags().StringVar(&mutateData, "data", "", "Row values as a JSON object (required)")
	_ = insertCmd.MarkFlagRequired("data")

	updateCmd.Flags().StringVar(&mutateSet, "set", "", "Columns to set as a JSON object (required)")
	updateCmd.Flags().StringVar(&mutateWhere, "where", "", "Match conditions as a JSON object (required)")
	_ = updateCmd.MarkFlagRequired("set")
	_ = updateCmd.MarkFlagRequired("where")

	deleteCmd.Flags().StringVar(&mutateWhere, "where", "", "Match conditions as a JSON object (required)")
	_ = deleteCmd.MarkFlagRequired("where")
}

func runInsert(cmd *cobra.Command, args []string) error {
	data, err := parseJSONObject("data", mutateData)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	op, err := db.Insert(args[0], data)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return outputOp(cmd, op, db.Online())
}

func runUpdate(cmd *cobra.Command, args []string) error {
	set, err := parseJSONObject("set", mutateSet)
	if err != nil {
		return err
	}
	where, err := parseJSONObject("where", mutateWhere)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	op, err := db.Update(args[0], set, where)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return outputOp(cmd, op, db.Online())
}

func runDelete(cmd *cobra.Command, args []string) error {
	where, err := parseJSONObject("where", mutateWhere)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	op, err := db.Delete(args[0], where)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return outputOp(cmd, op, db.Online())
}

func parseJSONObject(flag, raw string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return obj, nil
}
