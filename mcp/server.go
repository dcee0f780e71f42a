// Package mcp exposes a skiff database to MCP clients: agents query and
// mutate the local replica through tools, and the sync core replicates
// their writes like any other mutation.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skiffdb/skiff"
)

const serverVersion = "1.0.0"

// Server wraps the MCP server with skiff tools.
type Server struct {
	db        *skiff.DB
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with skiff tools registered.
func NewServer(db *skiff.DB) *Server {
	s := &Server{db: db}

	s.mcpServer = server.NewMCPServer(
		"skiff",
		serverVersion,
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "skiff_query", Description: "Run a read-only SQL query against the local replica"},
		{Name: "skiff_insert", Description: "Insert or replace a row; the write replicates to the room"},
		{Name: "skiff_update", Description: "Update rows matching an equality predicate; the write replicates to the room"},
		{Name: "skiff_delete", Description: "Delete rows matching an equality predicate; the write replicates to the room"},
		{Name: "skiff_stats", Description: "Report sync state: pending queue, confirmed sequence, connectivity"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "skiff_query":
		return s.handleQuery(ctx, args)
	case "skiff_insert":
		return s.handleInsert(ctx, args)
	case "skiff_update":
		return s.handleUpdate(ctx, args)
	case "skiff_delete":
		return s.handleDelete(ctx, args)
	case "skiff_stats":
		return s.handleStats(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	// skiff_query
	s.mcpServer.AddTool(mcp.NewTool("skiff_query",
		mcp.WithDescription("Run a read-only SQL query against the local replica. Returns rows as JSON. Mutations must go through skiff_insert, skiff_update, and skiff_delete so they replicate."),
		mcp.WithString("sql",
			mcp.Description("The SELECT statement to run"),
			mcp.Required(),
		),
		mcp.WithArray("args",
			mcp.Description("Positional parameters bound to ? placeholders"),
			mcp.WithStringItems(),
		),
	), s.mcpHandleQuery)

	// skiff_insert
	s.mcpServer.AddTool(mcp.NewTool("skiff_insert",
		mcp.WithDescription("Insert or replace one row. The mutation applies locally at once, queues as pending, and replicates once the authority confirms it."),
		mcp.WithString("table",
			mcp.Description("Target table name"),
			mcp.Required(),
		),
		mcp.WithObject("data",
			mcp.Description("Column to value map for the new row"),
			mcp.Required(),
		),
	), s.mcpHandleInsert)

	// skiff_update
	s.mcpServer.AddTool(mcp.NewTool("skiff_update",
		mcp.WithDescription("Update rows matching the where predicate (column equality, AND-combined). Applies locally at once and replicates."),
		mcp.WithString("table",
			mcp.Description("Target table name"),
			mcp.Required(),
		),
		mcp.WithObject("set",
			mcp.Description("Column to value map of fields to change"),
			mcp.Required(),
		),
		mcp.WithObject("where",
			mcp.Description("Column to value equality predicate selecting the rows"),
			mcp.Required(),
		),
	), s.mcpHandleUpdate)

	// skiff_delete
	s.mcpServer.AddTool(mcp.NewTool("skiff_delete",
		mcp.WithDescription("Delete rows matching the where predicate (column equality, AND-combined). Applies locally at once and replicates."),
		mcp.WithString("table",
			mcp.Description("Target table name"),
			mcp.Required(),
		),
		mcp.WithObject("where",
			mcp.Description("Column to value equality predicate selecting the rows"),
			mcp.Required(),
		),
	), s.mcpHandleDelete)

	// skiff_stats
	s.mcpServer.AddTool(mcp.NewTool("skiff_stats",
		mcp.WithDescription("Report sync state: client ID, confirmed and local sequence numbers, pending queue length, and connectivity."),
	), s.mcpHandleStats)
}

// MCP handlers that wrap internal handlers

func (s *Server) mcpHandleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleQuery(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleInsert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleInsert(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleUpdate(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleDelete(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func (s *Server) mcpHandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.handleStats(ctx, req.GetArguments())
	if err != nil {
		return nil, err
	}
	return toMCPResult(result), nil
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// Internal handlers

func (s *Server) handleQuery(ctx context.Context, args map[string]any) (*ToolResult, error) {
	sql, ok := args["sql"].(string)
	if !ok || strings.TrimSpace(sql) == "" {
		return &ToolResult{Content: "sql is required", IsError: true}, nil
	}

	params := toAnySlice(toStringSlice(args["args"]))

	result, err := s.db.Query(sql, params...)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("query failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatQueryResult(result)}, nil
}

func (s *Server) handleInsert(ctx context.Context, args map[string]any) (*ToolResult, error) {
	table, ok := args["table"].(string)
	if !ok || table == "" {
		return &ToolResult{Content: "table is required", IsError: true}, nil
	}
	data := toMap(args["data"])
	if len(data) == 0 {
		return &ToolResult{Content: "data is required", IsError: true}, nil
	}

	op, err := s.db.Insert(table, data)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("insert failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatOpResult(op, s.db.Online())}, nil
}

func (s *Server) handleUpdate(ctx context.Context, args map[string]any) (*ToolResult, error) {
	table, ok := args["table"].(string)
	if !ok || table == "" {
		return &ToolResult{Content: "table is required", IsError: true}, nil
	}
	set := toMap(args["set"])
	if len(set) == 0 {
		return &ToolResult{Content: "set is required", IsError: true}, nil
	}
	where := toMap(args["where"])
	if len(where) == 0 {
		return &ToolResult{Content: "where is required", IsError: true}, nil
	}

	op, err := s.db.Update(table, set, where)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("update failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatOpResult(op, s.db.Online())}, nil
}

func (s *Server) handleDelete(ctx context.Context, args map[string]any) (*ToolResult, error) {
	table, ok := args["table"].(string)
	if !ok || table == "" {
		return &ToolResult{Content: "table is required", IsError: true}, nil
	}
	where := toMap(args["where"])
	if len(where) == 0 {
		return &ToolResult{Content: "where is required", IsError: true}, nil
	}

	op, err := s.db.Delete(table, where)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("delete failed: %v", err), IsError: true}, nil
	}

	return &ToolResult{Content: formatOpResult(op, s.db.Online())}, nil
}

func (s *Server) handleStats(ctx context.Context, args map[string]any) (*ToolResult, error) {
	stats := s.db.Stats()

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("encode stats: %v", err), IsError: true}, nil
	}
	return &ToolResult{Content: string(out)}, nil
}

// Formatting helpers

func formatQueryResult(result *skiff.Result) string {
	if len(result.Rows) == 0 {
		return "No rows."
	}

	out, err := json.MarshalIndent(result.Rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("encode rows: %v", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d row(s):\n", len(result.Rows))
	sb.Write(out)
	return sb.String()
}

func formatOpResult(op *skiff.Operation, online bool) string {
	state := "queued offline; replicates on next connect"
	if online {
		state = "sent to the room; awaiting confirmation"
	}
	return fmt.Sprintf("Applied %s on %s (operation %s, local seq %d). %s.",
		op.Type, op.Table, op.ID, op.LocalSeq, state)
}

// Argument coercion helpers

func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}

	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

func toAnySlice(in []string) []any {
	if len(in) == 0 {
		return nil
	}
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
