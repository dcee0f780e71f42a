package skiff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestDebugLogger_SilentPaths verifies that nil and disabled loggers are
// safe to call from every internal path.
func TestDebugLogger_SilentPaths(t *testing.T) {
	var nilLogger *DebugLogger
	nilLogger.Log("ignored %d", 1)
	nilLogger.LogOp("stage", &Operation{ID: "op-1"})
	nilLogger.LogSQL("SELECT 1", 0)
	nilLogger.LogError("apply", ErrClosed)
	nilLogger.LogTransport("dial", "ws://x")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}

	path := filepath.Join(t.TempDir(), "debug.log")
	disabled, err := NewDebugLogger(false, path)
	if err != nil {
		t.Fatalf("NewDebugLogger: %v", err)
	}
	disabled.Log("ignored")

	// Disabled loggers never open the file.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("disabled logger touched %s", path)
	}
}

func TestDebugLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, err := NewDebugLogger(true, path)
	if err != nil {
		t.Fatalf("NewDebugLogger: %v", err)
	}

	logger.Log("plain %s", "message")
	logger.LogOp("reconcile", &Operation{ID: "op-1", Seq: 2, Table: "notes", Type: OpInsert})
	logger.LogError("apply", ErrClosed)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"plain message", "OP [reconcile]: id=op-1 seq=2", "ERROR [apply]"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := truncateForLog("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncateForLog(long, 10)
	if !strings.HasPrefix(got, "xxxxxxxxxx...") || !strings.Contains(got, "50 bytes total") {
		t.Errorf("truncate(long) = %q", got)
	}
}
