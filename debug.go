package skiff

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// DebugLogger provides debug logging for skiff internals.
// When enabled, it traces every operation through apply, reconcile,
// checkpoint, and transport transitions, including full error details.
type DebugLogger struct {
	mu      sync.Mutex
	enabled bool
	writer  io.Writer
}

// NewDebugLogger creates a new debug logger.
// If logPath is empty, logs to stderr.
func NewDebugLogger(enabled bool, logPath string) (*DebugLogger, error) {
	var writer io.Writer = os.Stderr

	if enabled && logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		writer = f
	}

	return &DebugLogger{
		enabled: enabled,
		writer:  writer,
	}, nil
}

// Close closes the debug logger if it's writing to a file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.writer.(io.Closer); ok && l.writer != os.Stderr {
		return closer.Close()
	}
	return nil
}

// Log writes a debug message if logging is enabled.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(l.writer, "[%s] [SKIFF DEBUG] %s\n", timestamp, msg)
}

// LogOp logs an operation at a named transition point.
func (l *DebugLogger) LogOp(stage string, op *Operation) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("OP [%s]: id=%s seq=%d local_seq=%d type=%s table=%s",
		stage, op.ID, op.Seq, op.LocalSeq, op.Type, op.Table)
}

// LogSQL logs a generated SQL statement and its argument count.
func (l *DebugLogger) LogSQL(stmt string, argc int) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("SQL: %s [%d args]", truncateForLog(stmt, 2000), argc)
}

// LogError logs an error with full details.
func (l *DebugLogger) LogError(operation string, err error) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("ERROR [%s]: %v", operation, err)
}

// LogTransport logs transport lifecycle details.
func (l *DebugLogger) LogTransport(event string, details string) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("TRANSPORT [%s]: %s", event, details)
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
