package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/scheduler"
	"github.com/kalambet/screenlog/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session Session
	Version string
}

// NewMCPServer creates an MCP server exposing the journal to assistants.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"screenlog",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("screenlog records short descriptions of the user's screen and writes work reports from them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_report",
			mcp.WithDescription("Write a work report from the observations collected so far and return its Markdown."),
		),
		mcpGenerateReport(deps),
	)

	s.AddTool(
		mcp.NewTool("list_observations",
			mcp.WithDescription("List the most recent screen observations, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of observations (default 20)")),
		),
		mcpListObservations(deps),
	)

	s.AddTool(
		mcp.NewTool("start_sharing",
			mcp.WithDescription("Start capturing the screen on the configured interval."),
		),
		mcpStartSharing(deps),
	)

	s.AddTool(
		mcp.NewTool("stop_sharing",
			mcp.WithDescription("Stop capturing the screen."),
		),
		mcpStopSharing(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journal://status",
			"Session Status",
			mcp.WithResourceDescription("Sharing state, intervals and record counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"journal://reports/latest",
			"Latest Report",
			mcp.WithResourceDescription("The newest successful work report as Markdown"),
			mcp.WithMIMEType("text/markdown"),
		),
		mcpResourceLatestReport(deps),
	)

	return s
}

func mcpGenerateReport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Session.GenerateReport()
		if errors.Is(err, scheduler.ErrNoObservations) {
			return mcpError("no observations yet; start sharing first"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("report generation failed: %v", err)), nil
		}
		if report.Status != journal.StatusSuccess {
			return mcpError(report.ErrorMessage), nil
		}
		return mcpText(report.Markdown), nil
	}
}

func mcpListObservations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}

		items, _ := deps.Session.Observations(1, limit)
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal observations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStartSharing(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		err := deps.Session.StartSharing()
		if errors.Is(err, capture.ErrCancelled) {
			return mcpError("screen sharing was declined"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start sharing: %v", err)), nil
		}
		st := deps.Session.Status()
		return mcpText(fmt.Sprintf("Sharing started; capturing every %ds", st.CaptureIntervalSeconds)), nil
	}
}

func mcpStopSharing(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Session.StopSharing()
		return mcpText("Sharing stopped"), nil
	}
}

func mcpResourceStatus(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Session.Status())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
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

func mcpResourceLatestReport(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		report, err := deps.Session.LatestReport()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no report has been generated yet")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get latest report: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     report.Markdown,
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
