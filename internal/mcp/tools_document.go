package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"collector/internal/document"
	"collector/internal/etl"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDocumentTools() {
	s.mcp.AddTool(mcp.NewTool("resolve_path",
		mcp.WithDescription(`Resolve a path against a JSON document. Paths use '.' and '#' between field names; when an array is met the rest of the path is resolved against every element, e.g. "data#id" on {"data":[{"id":1},{"id":2}]} gives [1,2].`),
		mcp.WithString("documentJSON", mcp.Description("Document as JSON"), mcp.Required()),
		mcp.WithString("path", mcp.Description("Path to resolve; empty returns the whole document")),
		mcp.WithBoolean("flatten", mcp.Description("Collapse one nesting level of array results")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleResolvePath)

	s.mcp.AddTool(mcp.NewTool("map_document",
		mcp.WithDescription(`Build a new document from rules. Each rule is [source, target], e.g. [["data#id","rows#id"]]. Unresolved sources are skipped unless strict is set.`),
		mcp.WithString("documentJSON", mcp.Description("Document as JSON"), mcp.Required()),
		mcp.WithString("rulesJSON", mcp.Description("JSON array of [source, target] pairs"), mcp.Required()),
		mcp.WithBoolean("strict", mcp.Description("Fail on the first unresolved source")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleMapDocument)

	s.mcp.AddTool(mcp.NewTool("render_template",
		mcp.WithDescription(`Render a statement template against a document. ${path} inserts a single value; ${array#field} emits one statement per element; ${@table} is replaced by table.`),
		mcp.WithString("template", mcp.Description("Statement template"), mcp.Required()),
		mcp.WithString("documentJSON", mcp.Description("Document as JSON"), mcp.Required()),
		mcp.WithString("table", mcp.Description("Destination table for ${@table}")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleRenderTemplate)
}

func documentArg(args map[string]any) (document.Value, error) {
	raw, ok := rawArg(args, "documentJSON")
	if !ok {
		return document.Value{}, fmt.Errorf("documentJSON is required")
	}
	doc, err := document.ParseString(raw)
	if err != nil {
		return document.Value{}, fmt.Errorf("parse documentJSON: %w", err)
	}
	return doc, nil
}

func (s *Server) handleResolvePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := documentArg(req.GetArguments())
	if err != nil {
		return nil, err
	}
	var opts []document.ResolveOption
	if req.GetBool("flatten", false) {
		opts = append(opts, document.WithFlatten())
	}
	v, ok := document.Resolve(doc, req.GetString("path", ""), opts...)
	return jsonResult(map[string]any{"found": ok, "value": v})
}

func (s *Server) handleMapDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	doc, err := documentArg(args)
	if err != nil {
		return nil, err
	}
	rawRules, ok := rawArg(args, "rulesJSON")
	if !ok {
		return nil, fmt.Errorf("rulesJSON is required")
	}
	var rules etl.RuleSet
	if err := json.Unmarshal([]byte(rawRules), &rules); err != nil {
		return nil, fmt.Errorf("parse rulesJSON: %w", err)
	}
	var opts []etl.MapOption
	if req.GetBool("strict", false) {
		opts = append(opts, etl.Strict())
	}
	out, err := etl.Map(doc, rules, opts...)
	if err != nil {
		return nil, err
	}
	return jsonResult(out)
}

func (s *Server) handleRenderTemplate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tmpl := req.GetString("template", "")
	if tmpl == "" {
		return nil, fmt.Errorf("template is required")
	}
	doc, err := documentArg(req.GetArguments())
	if err != nil {
		return nil, err
	}
	rows, err := etl.RenderTable(tmpl, req.GetString("table", ""), doc)
	if err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{"count": len(rows), "statements": rows})
}
