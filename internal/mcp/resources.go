package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	runsURI       = "collector://runs"
	runLogsPrefix = "collector://runs/"
	runLogsSuffix = "/logs"
	sourcesURI    = "collector://sources"
)

func (s *Server) registerResources() {
	// ── collector://runs ───────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		runsURI,
		"All Runs",
		mcp.WithMIMEType("application/json"),
	), s.handleRunsResource)

	// ── collector://sources ────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		sourcesURI,
		"Source Types",
		mcp.WithResourceDescription("Registered source types and their configuration fields"),
		mcp.WithMIMEType("application/json"),
	), s.handleSourcesResource)

	// ── collector://runs/{runId}/logs ──────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			runLogsPrefix+"{runId}"+runLogsSuffix,
			"Recent Logs of a Run",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleRunLogsResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.runs.ListRuns()
	if err != nil {
		return nil, err
	}
	return jsonContents(runsURI, summarizeRuns(runs))
}

func (s *Server) handleSourcesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(sourcesURI, s.runs.ListSources())
}

func (s *Server) handleRunLogsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	runID := runIDFromLogsURI(uri)
	if runID == "" {
		return nil, fmt.Errorf("could not extract runId from URI: %s", uri)
	}
	logs, err := s.runs.ListRunLogs(ctx, runID, 0)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, logs)
}

// runIDFromLogsURI extracts the run id from "collector://runs/{id}/logs".
func runIDFromLogsURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, runLogsPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, runLogsSuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
