package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("design_run",
		mcp.WithPromptDescription("Guide through designing a collection run from a source into a database table"),
		mcp.WithArgument("sourceType",
			mcp.ArgumentDescription("Source type (e.g. http, sqlite, postgres, mongodb, csv)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("table",
			mcp.ArgumentDescription("Destination table"),
			mcp.RequiredArgument(),
		),
	), s.handleDesignRunPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("diagnose_run",
		mcp.WithPromptDescription("Investigate why a run failed using its logs and a preview"),
		mcp.WithArgument("runId",
			mcp.ArgumentDescription("Run ID or name"),
			mcp.RequiredArgument(),
		),
	), s.handleDiagnoseRunPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleDesignRunPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	sourceType := req.Params.Arguments["sourceType"]
	table := req.Params.Arguments["table"]
	return userPrompt(
		fmt.Sprintf("Design a %s run into %s", sourceType, table),
		fmt.Sprintf(`Design a collection run that reads from a "%s" source and writes into the table "%s". Follow these steps:

1. Use list_sources to see the configuration fields of "%s"
2. Fetch a sample of the source data (query for databases) and use resolve_path to find the array that holds the records
3. Write mapping rules as [source, target] pairs and check them with map_document
4. Write a statement template using ${@table} and ${array#field} placeholders and check it with render_template against the mapped document
5. If the source is paged, add a paging block with a "${page}" placeholder in the locator and a stop condition
6. Use preview_run on the saved run before run_now

Every placeholder in the template must resolve in the mapped document, otherwise the value renders as null.`, sourceType, table, sourceType),
	), nil
}

func (s *Server) handleDiagnoseRunPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	runID := req.Params.Arguments["runId"]
	return userPrompt(
		fmt.Sprintf("Diagnose run %s", runID),
		fmt.Sprintf(`Find out why the run "%s" is failing. Follow these steps:

1. Use get_run to read its definition
2. Use list_run_logs to find the latest failed log and get_run_log to read its full text
3. Use preview_run on the first page to see the request, the raw response and the rendered statements
4. Compare the raw document with the mapping rules using resolve_path and map_document
5. Report the failing stage (receive, transform or deliver) and propose a fix to the run definition

Do not call run_now until the preview renders the expected statements.`, runID),
	), nil
}
