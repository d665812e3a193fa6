package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/visnote/internal/daysummary"
	"github.com/kalambet/visnote/internal/note"
	"github.com/kalambet/visnote/internal/records"
)

// NewMCPServer creates an MCP server exposing captures, notes and day summaries.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"visnote",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("visnote: notes generated from captured images, with per-day summaries."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture_image",
			mcp.WithDescription("Queue an image to be described and saved as a note."),
			mcp.WithString("image", mcp.Description("Base64 image or data URL"), mcp.Required()),
		),
		mcpCaptureImage(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List notes newest first, without image data."),
			mcp.WithString("day", mcp.Description("Only notes from this day (YYYY-MM-DD)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 20)")),
		),
		mcpListNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_note",
			mcp.WithDescription("Delete a note and save the remaining list to the archive."),
			mcp.WithString("id", mcp.Description("Note id"), mcp.Required()),
		),
		mcpDeleteNote(deps),
	)

	s.AddTool(
		mcp.NewTool("summarize_day",
			mcp.WithDescription("Summarize all notes captured on one day."),
			mcp.WithString("date", mcp.Description("Day to summarize (YYYY-MM-DD)"), mcp.Required()),
		),
		mcpSummarizeDay(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"notes://all",
			"Notes",
			mcp.WithResourceDescription("All notes, newest first, without image data"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceNotes(deps),
	)

	return s
}

func mcpCaptureImage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("image")
		if err != nil {
			return mcpError("image is required"), nil
		}
		img, err := note.ParseImage(raw)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid image: %v", err)), nil
		}
		job := deps.Processor.Submit(img)
		return mcpText(fmt.Sprintf("Queued capture %s (%d waiting)", job.ID, deps.Processor.QueueLen())), nil
	}
}

func mcpListNotes(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		notes := deps.Ledger.Store().Snapshot()
		if day := req.GetString("day", ""); day != "" {
			d, err := deps.Days.ParseDay(day)
			if err != nil {
				return mcpError("day must be YYYY-MM-DD"), nil
			}
			notes = notes.OnDay(d, deps.Days.Location())
		}

		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}
		b, err := json.Marshal(summarize(page(notes, 0, limit)))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal notes: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteNote(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		err = deps.Ledger.Remove(ctx, id)
		if errors.Is(err, records.ErrNotFound) {
			return mcpError(fmt.Sprintf("note %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("delete failed, note kept: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted note %s", id)), nil
	}
}

func mcpSummarizeDay(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		date, err := req.RequireString("date")
		if err != nil {
			return mcpError("date is required"), nil
		}
		day, err := deps.Days.ParseDay(date)
		if err != nil {
			return mcpError("date must be YYYY-MM-DD"), nil
		}

		gen := deps.Days.Select(ctx, day)
		deps.Days.Wait()
		view := deps.Days.View()

		if view.Generation != gen {
			return mcpError("another day was selected before this summary finished"), nil
		}
		switch view.Status {
		case daysummary.StatusEmpty:
			return mcpText(fmt.Sprintf("No notes on %s.", view.Day)), nil
		case daysummary.StatusFailed:
			return mcpError(fmt.Sprintf("summary failed: %s", view.Error)), nil
		}
		return mcpText(view.Summary), nil
	}
}

func mcpResourceNotes(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(summarize(deps.Ledger.Store().Snapshot()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notes: %w", err)
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

const maxSummaryRunes = 500

func summarize(notes note.Sequence) []noteSummary {
	out := make([]noteSummary, len(notes))
	for i, n := range notes {
		text := n.Text
		if utf8.RuneCountInString(text) > maxSummaryRunes {
			text = string([]rune(text)[:maxSummaryRunes]) + "..."
		}
		out[i] = noteSummary{ID: n.ID, Text: text, CreatedAt: n.CreatedAt.Format(time.RFC3339)}
	}
	return out
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
