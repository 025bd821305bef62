package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerConnectionTools() {
	s.mcp.AddTool(mcp.NewTool("list_connections",
		mcp.WithDescription("List stored database connections. Passwords are never returned."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListConnections)

	s.mcp.AddTool(mcp.NewTool("test_connection",
		mcp.WithDescription("Open and ping a database. locator is a stored connection id or name, or a DSN such as sqlite:///tmp/a.db."),
		mcp.WithString("locator", mcp.Description("Connection id, name or DSN"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true), OpenWorldHint: boolPtr(true)}),
	), s.handleTestConnection)

	s.mcp.AddTool(mcp.NewTool("query",
		mcp.WithDescription("Run a read query against a database and return the rows as JSON objects. For MongoDB the query is a JSON command: {\"collection\":\"users\",\"filter\":{}}."),
		mcp.WithString("locator", mcp.Description("Connection id, name or DSN"), mcp.Required()),
		mcp.WithString("query", mcp.Description("SQL SELECT or Mongo JSON command"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true), OpenWorldHint: boolPtr(true)}),
	), s.handleQuery)
}

func (s *Server) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.connections.ListConnections()
	if err != nil {
		return nil, err
	}
	return jsonResult(conns)
}

func (s *Server) handleTestConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locator, err := req.RequireString("locator")
	if err != nil {
		return nil, err
	}
	if err := s.connections.TestConnection(ctx, locator); err != nil {
		return textResult(fmt.Sprintf("connection failed: %v", err)), nil
	}
	return textResult("ok"), nil
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	locator, err := req.RequireString("locator")
	if err != nil {
		return nil, err
	}
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}
	rows, err := s.connections.Query(ctx, locator, query)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"count": len(rows), "rows": rows})
}
