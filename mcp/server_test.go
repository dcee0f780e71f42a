package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/skiffdb/skiff"
	skiffmcp "github.com/skiffdb/skiff/mcp"
)

func newTestDB(t *testing.T) *skiff.DB {
	t.Helper()

	db, err := skiff.Open(context.Background(), skiff.Config{
		Name: "agent-test",
		Dir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("skiff.Open() returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.CreateTable(`CREATE TABLE IF NOT EXISTS notes (id TEXT PRIMARY KEY, body TEXT)`); err != nil {
		t.Fatalf("CreateTable() returned error: %v", err)
	}
	return db
}

// =============================================================================
// Server Initialization Tests
// =============================================================================

func TestServer_NewServer(t *testing.T) {
	db := newTestDB(t)

	server := skiffmcp.NewServer(db)
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
}

func TestServer_ToolsList(t *testing.T) {
	db := newTestDB(t)

	server := skiffmcp.NewServer(db)
	tools := server.ListTools()

	expectedTools := []string{"skiff_query", "skiff_insert", "skiff_update", "skiff_delete", "skiff_stats"}
	if len(tools) != len(expectedTools) {
		t.Errorf("ListTools() returned %d tools, want %d", len(tools), len(expectedTools))
	}

	toolNames := make(map[string]bool)
	for _, tool := range tools {
		toolNames[tool.Name] = true
	}

	for _, expected := range expectedTools {
		if !toolNames[expected] {
			t.Errorf("Tool %q not found in registered tools", expected)
		}
	}
}

// =============================================================================
// Tool Execution Tests
// =============================================================================

func TestTool_Insert_Success(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	result, err := server.CallTool(context.Background(), "skiff_insert", map[string]any{
		"table": "notes",
		"data":  map[string]any{"id": "n1", "body": "hello"},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("insert reported error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "INSERT") {
		t.Errorf("insert result = %q, want mention of INSERT", result.Content)
	}

	if got := db.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
}

func TestTool_Insert_MissingData(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	result, err := server.CallTool(context.Background(), "skiff_insert", map[string]any{
		"table": "notes",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for insert without data")
	}
}

func TestTool_Query_Success(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	if _, err := db.Insert("notes", map[string]any{"id": "n1", "body": "hello"}); err != nil {
		t.Fatalf("Insert() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "skiff_query", map[string]any{
		"sql":  "SELECT id, body FROM notes WHERE id = ?",
		"args": []any{"n1"},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("query reported error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("query result = %q, want row content", result.Content)
	}
}

func TestTool_Query_NoRows(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	result, err := server.CallTool(context.Background(), "skiff_query", map[string]any{
		"sql": "SELECT * FROM notes",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("query reported error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "No rows") {
		t.Errorf("query result = %q, want no-rows message", result.Content)
	}
}

func TestTool_Query_MissingParam(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	result, err := server.CallTool(context.Background(), "skiff_query", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for query without sql")
	}
}

func TestTool_Update_Success(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	if _, err := db.Insert("notes", map[string]any{"id": "n1", "body": "old"}); err != nil {
		t.Fatalf("Insert() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "skiff_update", map[string]any{
		"table": "notes",
		"set":   map[string]any{"body": "new"},
		"where": map[string]any{"id": "n1"},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("update reported error: %s", result.Content)
	}

	rows, err := db.Query("SELECT body FROM notes WHERE id = ?", "n1")
	if err != nil {
		t.Fatalf("Query() returned error: %v", err)
	}
	if len(rows.Rows) != 1 || rows.Rows[0]["body"] != "new" {
		t.Errorf("row after update = %+v, want body=new", rows.Rows)
	}
}

func TestTool_Delete_Success(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	if _, err := db.Insert("notes", map[string]any{"id": "n1", "body": "bye"}); err != nil {
		t.Fatalf("Insert() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "skiff_delete", map[string]any{
		"table": "notes",
		"where": map[string]any{"id": "n1"},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("delete reported error: %s", result.Content)
	}

	rows, err := db.Query("SELECT * FROM notes")
	if err != nil {
		t.Fatalf("Query() returned error: %v", err)
	}
	if len(rows.Rows) != 0 {
		t.Errorf("rows after delete = %d, want 0", len(rows.Rows))
	}
}

func TestTool_Stats(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	if _, err := db.Insert("notes", map[string]any{"id": "n1", "body": "x"}); err != nil {
		t.Fatalf("Insert() returned error: %v", err)
	}

	result, err := server.CallTool(context.Background(), "skiff_stats", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("stats reported error: %s", result.Content)
	}

	var stats skiff.Stats
	if err := json.Unmarshal([]byte(result.Content), &stats); err != nil {
		t.Fatalf("stats output is not JSON: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Errorf("stats.PendingCount = %d, want 1", stats.PendingCount)
	}
	if stats.ClientID == "" {
		t.Error("stats.ClientID is empty")
	}
}

func TestTool_Unknown(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	result, err := server.CallTool(context.Background(), "skiff_bogus", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for unknown tool")
	}
}

// =============================================================================
// Protocol Tests
// =============================================================================

func TestProtocol_Initialize(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	initRequest := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`

	response := server.HandleMessage(context.Background(), []byte(initRequest))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for initialize request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if _, hasError := respMap["error"]; hasError {
		t.Errorf("Initialize response has error: %v", respMap["error"])
	}

	result, ok := respMap["result"].(map[string]any)
	if !ok {
		t.Fatalf("Initialize response missing result")
	}

	serverInfo, ok := result["serverInfo"].(map[string]any)
	if !ok {
		t.Fatal("Initialize result missing serverInfo")
	}
	if serverInfo["name"] != "skiff" {
		t.Errorf("serverInfo.name = %v, want 'skiff'", serverInfo["name"])
	}

	capabilities, ok := result["capabilities"].(map[string]any)
	if !ok {
		t.Fatal("Initialize result missing capabilities")
	}
	if _, hasTools := capabilities["tools"]; !hasTools {
		t.Error("Capabilities should include tools")
	}
}

func TestProtocol_InvalidMethod(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	invalidMethodRequest := `{"jsonrpc":"2.0","id":1,"method":"unknown/method","params":{}}`

	response := server.HandleMessage(context.Background(), []byte(invalidMethodRequest))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for invalid method request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	errorObj, hasError := respMap["error"].(map[string]any)
	if !hasError {
		t.Fatal("Response should have error for unknown method")
	}

	errorCode, ok := errorObj["code"].(float64)
	if !ok {
		t.Fatalf("Error missing code field")
	}
	if int(errorCode) != -32601 {
		t.Errorf("Error code = %v, want -32601 (METHOD_NOT_FOUND)", errorCode)
	}
}

func TestProtocol_ToolsList(t *testing.T) {
	db := newTestDB(t)
	server := skiffmcp.NewServer(db)

	listRequest := `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`

	response := server.HandleMessage(context.Background(), []byte(listRequest))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for tools/list request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	result, ok := respMap["result"].(map[string]any)
	if !ok {
		t.Fatalf("tools/list response missing result: %s", respBytes)
	}
	tools, ok := result["tools"].([]any)
	if !ok {
		t.Fatalf("tools/list result missing tools array")
	}
	if len(tools) != 5 {
		t.Errorf("tools/list returned %d tools, want 5", len(tools))
	}
}
