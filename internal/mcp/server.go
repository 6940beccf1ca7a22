// Package mcp exposes uploader operations as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ytuploader/internal/control"
	"ytuploader/internal/core"
	"ytuploader/internal/store"
)

const serverName = "ytuploader"

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	service *control.Service
	logger  *slog.Logger
	version string
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(service *control.Service, version string, logger *slog.Logger) *MCPServer {
	return &MCPServer{service: service, logger: logger, version: version}
}

// Run serves MCP on the given streams until ctx is done or stdin closes.
func (s *MCPServer) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	mcpServer := server.NewMCPServer(serverName, s.version, server.WithToolCapabilities(true))
	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.NewStdioServer(mcpServer).Listen(ctx, stdin, stdout)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("uploader_status",
		mcp.WithDescription("Show the scheduler state, the next upload slot and whether an upload is running"),
	), s.handleStatus)

	mcpServer.AddTool(mcp.NewTool("uploader_run_now",
		mcp.WithDescription("Upload the next pending sheet row now instead of waiting for the schedule"),
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the upload to finish and report its outcome (default false)"),
		),
	), s.handleRunNow)

	mcpServer.AddTool(mcp.NewTool("uploader_list_runs",
		mcp.WithDescription("List recent upload runs, newest first"),
		mcp.WithString("status",
			mcp.Description("Filter by run status"),
			mcp.Enum(string(core.RunStatusProcessing), string(core.RunStatusDone), string(core.RunStatusFailed), string(core.RunStatusAbandoned)),
		),
		mcp.WithString("account",
			mcp.Description("Filter by account name"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Number of runs to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleListRuns)

	mcpServer.AddTool(mcp.NewTool("uploader_preview_schedule",
		mcp.WithDescription("Preview upcoming upload times for the configured schedule or a proposed one"),
		mcp.WithString("times",
			mcp.Description("Comma separated HH:MM times; omit to use the configured schedule"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone for the proposed times, default UTC"),
		),
		mcp.WithBoolean("randomize",
			mcp.Description("Shuffle the order of each day's slots"),
		),
		mcp.WithNumber("days",
			mcp.Description("Number of days to preview, default 2"),
			mcp.Min(1),
			mcp.Max(14),
		),
	), s.handlePreviewSchedule)

	s.logger.Info("MCP tools registered", "count", 4)
}

func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.service.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "Scheduler: %s\n", st.Scheduler)
	fmt.Fprintf(&b, "Upload running: %t\n", st.Running)
	fmt.Fprintf(&b, "Next run: %s\n", formatTime(st.NextRun))
	if len(st.Times) > 0 {
		fmt.Fprintf(&b, "Times: %s (%s", strings.Join(st.Times, ", "), st.Timezone)
		if st.Randomize {
			b.WriteString(", randomized")
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "Accounts: %d\n", st.Accounts)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRunNow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !mcp.ParseBoolean(request, "wait", false) {
		if err := s.service.StartRun(core.TriggerMCP); err != nil {
			return mcp.NewToolResultError(runErrorText(err)), nil
		}
		return mcp.NewToolResultText("Upload cycle started in the background"), nil
	}

	run, err := s.service.RunNow(ctx, core.TriggerMCP)
	if run == nil {
		if err != nil {
			return mcp.NewToolResultError(runErrorText(err)), nil
		}
		return mcp.NewToolResultText("No pending rows"), nil
	}
	text := describeRun(run)
	if run.Status != core.RunStatusDone {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

func runErrorText(err error) string {
	if errors.Is(err, core.ErrRunInProgress) {
		return "An upload cycle is already running"
	}
	return fmt.Sprintf("Upload cycle failed: %v", err)
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.RunFilter{
		Status:  core.RunStatus(mcp.ParseString(request, "status", "")),
		Account: strings.TrimSpace(mcp.ParseString(request, "account", "")),
		Limit:   int(mcp.ParseFloat64(request, "limit", 20)),
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	runs, err := s.service.ListRuns(ctx, filter)
	if err != nil {
		s.logger.Error("list runs", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d runs:\n\n", len(runs))
	for _, run := range runs {
		b.WriteString(describeRun(run))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handlePreviewSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := control.PreviewRequest{
		Timezone:  strings.TrimSpace(mcp.ParseString(request, "timezone", "")),
		Randomize: mcp.ParseBoolean(request, "randomize", false),
		Days:      int(mcp.ParseFloat64(request, "days", 0)),
	}
	if raw := strings.TrimSpace(mcp.ParseString(request, "times", "")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			req.Times = append(req.Times, strings.TrimSpace(t))
		}
	}

	slots, spec, err := s.service.PreviewSchedule(req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid schedule: %v", err)), nil
	}
	if len(slots) == 0 {
		return mcp.NewToolResultText("No upcoming upload times"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Upcoming upload times (%s):\n", spec.Location)
	for i, t := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.In(spec.Location).Format("2006-01-02 15:04 MST"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func describeRun(run *core.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", statusToIcon(run.Status), run.ID)
	fmt.Fprintf(&b, "  Row: %d\n", run.RowIndex)
	if run.Title != "" {
		fmt.Fprintf(&b, "  Title: %s\n", truncateString(run.Title, 60))
	}
	if run.Account != "" {
		fmt.Fprintf(&b, "  Account: %s\n", run.Account)
	}
	fmt.Fprintf(&b, "  Status: %s (%d attempts, trigger %s)\n", run.Status, run.Attempts, run.Trigger)
	fmt.Fprintf(&b, "  Started: %s\n", formatTime(&run.StartedAt))
	if run.VideoURL != nil {
		fmt.Fprintf(&b, "  Video: %s\n", *run.VideoURL)
	}
	if run.Error != nil {
		fmt.Fprintf(&b, "  Error: %s\n", truncateString(*run.Error, 200))
	}
	return b.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func statusToIcon(status core.RunStatus) string {
	switch status {
	case core.RunStatusDone:
		return "✅"
	case core.RunStatusFailed:
		return "❌"
	case core.RunStatusAbandoned:
		return "⚠️"
	case core.RunStatusProcessing:
		return "▶️"
	default:
		return "❓"
	}
}
