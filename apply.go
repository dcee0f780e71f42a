package skiff

import (
	"fmt"
	"sort"
	"strings"
)

// applyOp translates an operation into SQL and runs it against the engine.
// It never mutates op; applying the same op on the same engine state yields
// the same result, which keeps replays idempotent. Failures come back as
// *ApplyError for the caller to surface or swallow.
func applyOp(engine Engine, op *Operation) error {
	stmt, args, err := buildSQL(op)
	if err != nil {
		return &ApplyError{Op: op.ID, Err: err}
	}
	if _, err := engine.Exec(stmt, args...); err != nil {
		return &ApplyError{Op: op.ID, Err: err}
	}
	return nil
}

// buildSQL produces the statement and bind arguments for an operation.
// Column order is sorted so the generated SQL is deterministic.
func buildSQL(op *Operation) (string, []any, error) {
	if op.Table == "" {
		return "", nil, ErrEmptyTable
	}

	switch op.Type {
	case OpInsert:
		return buildInsert(op)
	case OpUpdate:
		return buildUpdate(op)
	case OpDelete:
		return buildDelete(op)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidOpType, op.Type)
	}
}

func buildInsert(op *Operation) (string, []any, error) {
	cols := sortedKeys(op.Data)
	if len(cols) == 0 {
		return "", nil, ErrEmptyData
	}

	quoted := make([]string, len(cols))
	holders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
		holders[i] = "?"
		args[i] = op.Data[col]
	}

	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		quoteIdent(op.Table),
		strings.Join(quoted, ", "),
		strings.Join(holders, ", "))
	return stmt, args, nil
}

func buildUpdate(op *Operation) (string, []any, error) {
	setCols := sortedKeys(op.Data)
	if len(setCols) == 0 {
		return "", nil, ErrEmptyData
	}
	whereCols := sortedKeys(op.Where)
	if len(whereCols) == 0 {
		return "", nil, ErrEmptyWhere
	}

	sets := make([]string, len(setCols))
	args := make([]any, 0, len(setCols)+len(whereCols))
	for i, col := range setCols {
		sets[i] = quoteIdent(col) + " = ?"
		args = append(args, op.Data[col])
	}

	conds := make([]string, len(whereCols))
	for i, col := range whereCols {
		conds[i] = quoteIdent(col) + " = ?"
		args = append(args, op.Where[col])
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		quoteIdent(op.Table),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "))
	return stmt, args, nil
}

func buildDelete(op *Operation) (string, []any, error) {
	whereCols := sortedKeys(op.Where)
	if len(whereCols) == 0 {
		return "", nil, ErrEmptyWhere
	}

	conds := make([]string, len(whereCols))
	args := make([]any, len(whereCols))
	for i, col := range whereCols {
		conds[i] = quoteIdent(col) + " = ?"
		args[i] = op.Where[col]
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s",
		quoteIdent(op.Table),
		strings.Join(conds, " AND "))
	return stmt, args, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quoteIdent quotes a table or column name. Identifiers arrive from remote
// operations, so they are never interpolated bare.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
