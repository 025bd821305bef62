package mcpserver

import (
	"context"
	"fmt"

	"collector/internal/etl"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerRunTools() {
	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List stored collection runs with their last status"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the full definition of a run: source, rules, template, paging and destination"),
		mcp.WithString("runId", mcp.Description("Run ID or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleGetRun)

	s.mcp.AddTool(mcp.NewTool("run_now",
		mcp.WithDescription("🛑 DESTRUCTIVE: Execute a run now. Rendered statements are executed against the run's destination unless dryRun is set."),
		mcp.WithString("runId", mcp.Description("Run ID or name"), mcp.Required()),
		mcp.WithBoolean("dryRun", mcp.Description("Render and log statements without executing them")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunNow)

	s.mcp.AddTool(mcp.NewTool("preview_run",
		mcp.WithDescription("Fetch, transform and render one page of a run without executing anything or writing a run log"),
		mcp.WithString("runId", mcp.Description("Run ID or name"), mcp.Required()),
		mcp.WithNumber("page", mcp.Description("Page counter value (defaults to the first page)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewRun)

	s.mcp.AddTool(mcp.NewTool("list_run_logs",
		mcp.WithDescription("List the latest run logs of a run, newest first"),
		mcp.WithString("runId", mcp.Description("Run ID or name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of logs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRunLogs)

	s.mcp.AddTool(mcp.NewTool("get_run_log",
		mcp.WithDescription("Get one run log with its full text"),
		mcp.WithString("logId", mcp.Description("Run log ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleGetRunLog)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List available source types with their configuration fields"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListSources)
}

// runSummary is the list_runs view of a run.
type runSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SourceType  string `json:"sourceType"`
	TriggerType string `json:"triggerType"`
	Enabled     bool   `json:"enabled"`
	LastStatus  string `json:"lastStatus"`
	LastError   string `json:"lastError,omitempty"`
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.runs.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return jsonResult(summarizeRuns(runs))
}

func summarizeRuns(runs []etl.Run) []runSummary {
	out := make([]runSummary, len(runs))
	for i, r := range runs {
		out[i] = runSummary{
			ID:          r.ID,
			Name:        r.Name,
			SourceType:  r.SourceType,
			TriggerType: r.TriggerType,
			Enabled:     r.Enabled,
			LastStatus:  r.LastStatus.String(),
			LastError:   r.LastError,
		}
	}
	return out
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return jsonResult(run)
}

func (s *Server) handleRunNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	var opts []etl.CollectOption
	if req.GetBool("dryRun", false) {
		opts = append(opts, etl.DryRun())
	}

	res, err := s.runs.RunNow(ctx, runID, opts...)
	if res == nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	// A failed run is still a result the caller should see.
	out := map[string]any{
		"runId":            res.RunID,
		"logId":            res.LogID,
		"status":           res.Status.String(),
		"pages":            res.Pages,
		"rows":             res.Rows,
		"flushes":          res.Flushes,
		"failedStatements": res.FailedStatements,
		"retries":          res.Retries,
		"duration":         res.Duration.String(),
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return jsonResult(out)
}

func (s *Server) handlePreviewRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	preview, err := s.runs.Preview(ctx, runID, req.GetInt("page", 0))
	if err != nil {
		return nil, fmt.Errorf("preview run: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleListRunLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("runId", "")
	if runID == "" {
		return nil, fmt.Errorf("runId is required")
	}
	logs, err := s.runs.ListRunLogs(ctx, runID, req.GetInt("limit", 20))
	if err != nil {
		return nil, err
	}
	return jsonResult(logs)
}

func (s *Server) handleGetRunLog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logID := req.GetString("logId", "")
	if logID == "" {
		return nil, fmt.Errorf("logId is required")
	}
	l, err := s.runs.GetRunLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	return jsonResult(l)
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.runs.ListSources())
}
