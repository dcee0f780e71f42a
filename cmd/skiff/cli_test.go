package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skiffdb/skiff"
)

// testEnv points the CLI at a temporary database and resets global flag
// state. Returns a cleanup function.
func testEnv(t *testing.T) func() {
	t.Helper()

	t.Setenv("SKIFF_DB", "clitest")
	t.Setenv("SKIFF_DIR", t.TempDir())
	t.Setenv("SKIFF_URL", "")
	t.Setenv("SKIFF_ROOM", "")
	t.Setenv("SKIFF_DEBUG", "")
	t.Setenv("SKIFF_DEBUG_LOG", "")

	reset := func() {
		cfgName = ""
		cfgDir = ""
		cfgURL = ""
		cfgRoom = ""
		outputJSON = false
		debugMode = false
		queryArgs = nil
		mutateData = ""
		mutateSet = ""
		mutateWhere = ""
		opsOutput = ""
		serveAddr = ":8080"
	}
	reset()
	return reset
}

// runCLI executes the root command with args and returns captured stdout.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("skiff %s: %v", strings.Join(args, " "), err)
	}
	return stdout.String()
}

func TestCLI_Help_ListsAllCommands(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	output := runCLI(t, "--help")

	expectedCommands := []string{
		"query", "exec", "insert", "update", "delete",
		"stats", "ops", "export", "serve", "mcp", "version",
	}
	for _, cmd := range expectedCommands {
		if !strings.Contains(output, cmd) {
			t.Errorf("--help output should contain %q command", cmd)
		}
	}
}

func TestCLI_Exec_RunsDDL(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	output := runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")

	if !strings.Contains(output, "OK") {
		t.Errorf("exec should print OK, got: %s", output)
	}
}

func TestCLI_InsertThenQuery_RoundTrip(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	insertOut := runCLI(t, "insert", "notes", "--data", `{"id":"n1","body":"hello"}`)

	if !strings.Contains(insertOut, "INSERT on notes") {
		t.Errorf("insert should report the operation, got: %s", insertOut)
	}
	if !strings.Contains(insertOut, "queued offline") {
		t.Errorf("offline insert should report queueing, got: %s", insertOut)
	}

	// State persists across command invocations.
	queryOut := runCLI(t, "query", "SELECT body FROM notes WHERE id = ?", "--arg", "n1", "--json")

	var result skiff.Result
	if err := json.Unmarshal([]byte(queryOut), &result); err != nil {
		t.Fatalf("query --json should emit a result object: %v\noutput: %s", err, queryOut)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	if got := result.Rows[0]["body"]; got != "hello" {
		t.Errorf("body = %v, want hello", got)
	}
}

func TestCLI_Query_HumanOutput(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	runCLI(t, "insert", "notes", "--data", `{"id":"n1","body":"hello"}`)

	output := runCLI(t, "query", "SELECT id, body FROM notes")

	for _, want := range []string{"id", "body", "n1", "hello", "1 row(s)"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got: %s", want, output)
		}
	}
}

func TestCLI_Query_NoRows(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	output := runCLI(t, "query", "SELECT * FROM notes")

	if !strings.Contains(output, "No rows.") {
		t.Errorf("empty result should print 'No rows.', got: %s", output)
	}
}

func TestCLI_UpdateAndDelete(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	runCLI(t, "insert", "notes", "--data", `{"id":"n1","body":"hello"}`)

	updateOut := runCLI(t, "update", "notes", "--set", `{"body":"revised"}`, "--where", `{"id":"n1"}`)
	if !strings.Contains(updateOut, "UPDATE on notes") {
		t.Errorf("update should report the operation, got: %s", updateOut)
	}

	deleteOut := runCLI(t, "delete", "notes", "--where", `{"id":"n1"}`)
	if !strings.Contains(deleteOut, "DELETE on notes") {
		t.Errorf("delete should report the operation, got: %s", deleteOut)
	}

	output := runCLI(t, "query", "SELECT * FROM notes")
	if !strings.Contains(output, "No rows.") {
		t.Errorf("row should be gone after delete, got: %s", output)
	}
}

func TestCLI_Insert_RejectsBadJSON(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"insert", "notes", "--data", "not json"})

	if err := rootCmd.Execute(); err == nil {
		t.Fatal("insert with malformed --data should error")
	}
}

func TestCLI_Stats_JSON(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	runCLI(t, "insert", "notes", "--data", `{"id":"n1","body":"hello"}`)

	output := runCLI(t, "stats", "--json")

	var stats skiff.Stats
	if err := json.Unmarshal([]byte(output), &stats); err != nil {
		t.Fatalf("stats --json should emit a stats object: %v\noutput: %s", err, output)
	}
	if stats.ClientID == "" {
		t.Error("stats should carry a client ID")
	}
	if stats.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", stats.PendingCount)
	}
	if stats.Online {
		t.Error("offline database should report Online=false")
	}
}

func TestCLI_Stats_Human(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	output := runCLI(t, "stats")

	for _, want := range []string{"Sync State", "Client ID:", "Pending:", "Checkpoint:"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got: %s", want, output)
		}
	}
}

func TestCLI_Ops_WritesFile(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")
	runCLI(t, "insert", "notes", "--data", `{"id":"n1","body":"hello"}`)

	dest := filepath.Join(t.TempDir(), "oplog.jsonl")
	runCLI(t, "ops", "--output", dest)

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ops should write the output file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one op, got %d lines", len(lines))
	}

	var header skiff.ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("first line should be the export header: %v", err)
	}
	if header.Version != skiff.ExportVersion {
		t.Errorf("header version = %q, want %q", header.Version, skiff.ExportVersion)
	}
	if header.Pending != 1 {
		t.Errorf("header pending = %d, want 1", header.Pending)
	}

	var op skiff.ExportOp
	if err := json.Unmarshal([]byte(lines[1]), &op); err != nil {
		t.Fatalf("second line should be an operation: %v", err)
	}
	if op.Status != skiff.ExportStatusPending {
		t.Errorf("op status = %q, want %q", op.Status, skiff.ExportStatusPending)
	}
}

func TestCLI_Ops_Stdout(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	output := runCLI(t, "ops")

	var header skiff.ExportHeader
	if err := json.Unmarshal([]byte(strings.SplitN(output, "\n", 2)[0]), &header); err != nil {
		t.Fatalf("first line should be the export header: %v\noutput: %s", err, output)
	}
}

func TestCLI_Export_WritesImage(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	runCLI(t, "exec", "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)")

	dest := filepath.Join(t.TempDir(), "backup.db")
	runCLI(t, "export", dest)

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("export should write the image: %v", err)
	}
	if info.Size() == 0 {
		t.Error("exported image should not be empty")
	}
}

func TestCLI_FlagOverridesEnv(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	cfgName = "flagged"
	cfg := loadConfig()
	if cfg.Name != "flagged" {
		t.Errorf("flag should override env, got Name=%q", cfg.Name)
	}

	cfgName = ""
	cfg = loadConfig()
	if cfg.Name != "clitest" {
		t.Errorf("env should apply when flag unset, got Name=%q", cfg.Name)
	}
}

func TestCLI_LoadConfig_WiresTransport(t *testing.T) {
	cleanup := testEnv(t)
	defer cleanup()

	cfg := loadConfig()
	if cfg.Transport != nil {
		t.Error("offline config should not carry a transport")
	}

	cfgURL = "ws://localhost:8080"
	cfg = loadConfig()
	if cfg.Transport == nil {
		t.Error("config with a URL should carry the wsroom transport")
	}
}
