package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/doselog/internal/status"
	"github.com/kalambet/doselog/internal/track"
)

// NewMCPServer creates an MCP server exposing the tracking tools over stdio,
// sharing the same services as the HTTP surface.
func NewMCPServer(deps AppDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"doselog",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("doselog — local-first weight and medication tracking with background sync."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("log_weight",
			mcp.WithDescription("Record a weight measurement in kilograms."),
			mcp.WithNumber("weight_kg", mcp.Description("Weight in kilograms"), mcp.Required()),
			mcp.WithString("recorded_at", mcp.Description("RFC3339 timestamp; omit for now")),
			mcp.WithString("note", mcp.Description("Optional note")),
		),
		mcpLogWeight(deps),
	)

	s.AddTool(
		mcp.NewTool("log_injection",
			mcp.WithDescription("Record a medication injection."),
			mcp.WithString("medication", mcp.Description("Medication name"), mcp.Required()),
			mcp.WithNumber("dose_mg", mcp.Description("Dose in milligrams"), mcp.Required()),
			mcp.WithString("site", mcp.Description("Injection site, e.g. abdomen")),
			mcp.WithString("injected_at", mcp.Description("RFC3339 timestamp; omit for now")),
			mcp.WithString("note", mcp.Description("Optional note")),
		),
		mcpLogInjection(deps),
	)

	s.AddTool(
		mcp.NewTool("weight_stats",
			mcp.WithDescription("Summarize the weight series: trend per week, moving average, min/max."),
			mcp.WithNumber("limit", mcp.Description("Maximum entries to include (default 365)")),
		),
		mcpWeightStats(deps),
	)

	s.AddTool(
		mcp.NewTool("sync_status",
			mcp.WithDescription("Report the current synchronization status and pending change count."),
		),
		mcpSyncStatus(deps),
	)

	return s
}

func mcpLogWeight(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		weightKg, err := req.RequireFloat("weight_kg")
		if err != nil {
			return mcpError("weight_kg is required"), nil
		}

		var recordedAt time.Time
		if s := req.GetString("recorded_at", ""); s != "" {
			recordedAt, err = time.Parse(time.RFC3339, s)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid recorded_at: %v", err)), nil
			}
		}

		entry, err := deps.Track.LogWeight(track.LogWeightParams{
			UserID:     deps.UserID,
			RecordedAt: recordedAt,
			WeightKg:   weightKg,
			Note:       req.GetString("note", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to log weight: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Logged %.1f kg at %s (entry %s)",
			entry.WeightKg, entry.RecordedAt.Format(time.RFC3339), entry.ID)), nil
	}
}

func mcpLogInjection(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		medication, err := req.RequireString("medication")
		if err != nil {
			return mcpError("medication is required"), nil
		}
		doseMg, err := req.RequireFloat("dose_mg")
		if err != nil {
			return mcpError("dose_mg is required"), nil
		}

		var injectedAt time.Time
		if s := req.GetString("injected_at", ""); s != "" {
			injectedAt, err = time.Parse(time.RFC3339, s)
			if err != nil {
				return mcpError(fmt.Sprintf("invalid injected_at: %v", err)), nil
			}
		}

		injection, err := deps.Track.LogInjection(track.LogInjectionParams{
			UserID:     deps.UserID,
			InjectedAt: injectedAt,
			Medication: medication,
			DoseMg:     doseMg,
			Site:       req.GetString("site", ""),
			Note:       req.GetString("note", ""),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to log injection: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Logged %.2f mg %s at %s (entry %s)",
			injection.DoseMg, injection.Medication,
			injection.InjectedAt.Format(time.RFC3339), injection.ID)), nil
	}
}

func mcpWeightStats(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 365)
		if limit <= 0 {
			limit = 365
		}

		entries, err := deps.Track.ListWeights(deps.UserID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list weights: %v", err)), nil
		}

		b, err := json.Marshal(track.ComputeWeightStats(entries))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSyncStatus(deps AppDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending, err := deps.Store.CountOutbox()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to count pending changes: %v", err)), nil
		}
		st := deps.Status.Get()
		b, err := json.Marshal(syncStatusResponse{
			Status:  st,
			Display: status.FormatRelative(st, deps.Clock.Now()),
			Pending: pending,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
