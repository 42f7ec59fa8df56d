package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/specwright/internal/contract"
	"github.com/kalambet/specwright/internal/pipeline"
	"github.com/kalambet/specwright/internal/storage"
	"github.com/kalambet/specwright/internal/timeline"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator *pipeline.Orchestrator
	Store        *storage.Store
	Timeline     *timeline.Log
}

// NewMCPServer creates an MCP server with the job tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"specwright",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("specwright — turns a target URL into a reviewed, read-only executable UI test."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_test_job",
			mcp.WithDescription("Create a test generation job for a target URL. The job runs preflight checks, extracts the page, and prepares it for test generation."),
			mcp.WithString("target_url", mcp.Description("URL of the page to test"), mcp.Required()),
			mcp.WithString("scope", mcp.Description("Execution scope: read-only (default) or sandbox")),
			mcp.WithString("test_profile", mcp.Description("Test profile name (default: default)")),
		),
		mcpCreateTestJob(deps),
	)

	s.AddTool(
		mcp.NewTool("job_status",
			mcp.WithDescription("Look up a job's current status and preflight result."),
			mcp.WithString("job_id", mcp.Description("Job identifier"), mcp.Required()),
		),
		mcpJobStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("job_timeline",
			mcp.WithDescription("Return a job's per-phase timeline summary."),
			mcp.WithString("job_id", mcp.Description("Job identifier"), mcp.Required()),
		),
		mcpJobTimeline(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"jobs://recent",
			"Recent Jobs",
			mcp.WithResourceDescription("Last 10 jobs with status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentJobs(deps),
	)

	return s
}

func mcpCreateTestJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		targetURL, err := req.RequireString("target_url")
		if err != nil {
			return mcpError("target_url is required"), nil
		}
		scope := req.GetString("scope", "")
		profile := req.GetString("test_profile", "")

		job, err := deps.Orchestrator.Create(ctx, pipeline.CreateRequest{
			TargetURL:   targetURL,
			Scope:       contract.Scope(scope),
			TestProfile: profile,
			OwnerID:     "mcp",
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create job: %v", err)), nil
		}
		logs, err := deps.Store.ConsentLogs(job.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load consent records: %v", err)), nil
		}

		b, err := json.Marshal(viewOf(job, logs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJobStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		job, err := deps.Store.GetJob(jobID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
		}
		logs, err := deps.Store.ConsentLogs(job.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load consent records: %v", err)), nil
		}

		b, err := json.Marshal(viewOf(job, logs))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJobTimeline(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}

		if _, err := deps.Store.GetJob(jobID); err != nil {
			return mcpError(fmt.Sprintf("failed to get job: %v", err)), nil
		}

		entries, err := deps.Timeline.Read(jobID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read timeline: %v", err)), nil
		}

		b, err := json.Marshal(timeline.Summarize(jobID, entries))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentJobs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jobs, err := deps.Store.RecentJobs(10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent jobs: %w", err)
		}

		type jobSummary struct {
			ID        string `json:"id"`
			TargetURL string `json:"target_url"`
			Status    string `json:"status"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]jobSummary, len(jobs))
		for i, j := range jobs {
			summaries[i] = jobSummary{
				ID:        j.ID,
				TargetURL: j.TargetURL,
				Status:    j.Status,
				CreatedAt: j.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal jobs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
