package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"collector/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the collector.
// It exposes runs, run logs and the document tools so AI agents can
// inspect and execute collection runs.
type Server struct {
	mcp    *server.MCPServer
	logger *slog.Logger

	runs        *service.RunService
	connections *service.ConnectionService
}

// Deps holds the services the MCP server works against.
type Deps struct {
	Runs        *service.RunService
	Connections *service.ConnectionService // optional
	Notifier    *Notifier                  // optional; attached to the new server
	Logger      *slog.Logger
	Version     string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		logger:      logger,
		runs:        deps.Runs,
		connections: deps.Connections,
	}

	s.mcp = server.NewMCPServer(
		"collector-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerRunTools()
	s.registerDocumentTools()
	if s.connections != nil {
		s.registerConnectionTools()
	}
	s.registerResources()
	s.registerPrompts()

	if deps.Notifier != nil {
		deps.Notifier.attach(s.mcp)
	}
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp: starting stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Notifier ───────────────────────────────────────────────

// Notifier is a service.EventEmitter that forwards service events to
// connected MCP clients. It drops events until a server is attached.
type Notifier struct {
	mu  sync.RWMutex
	srv *server.MCPServer
}

var _ service.EventEmitter = (*Notifier)(nil)

func (n *Notifier) attach(srv *server.MCPServer) {
	n.mu.Lock()
	n.srv = srv
	n.mu.Unlock()
}

func (n *Notifier) Emit(_ context.Context, event string, data any) {
	n.mu.RLock()
	srv := n.srv
	n.mu.RUnlock()
	if srv == nil {
		return
	}
	srv.SendNotificationToAllClients("notifications/collector/"+event, map[string]any{"data": data})
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// rawArg returns args[key] as JSON text. Clients send JSON either as a
// string or as an already-decoded value.
func rawArg(args map[string]any, key string) (string, bool) {
	switch v := args[key].(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func boolPtr(v bool) *bool { return &v }
